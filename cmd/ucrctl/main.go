// Package main implements ucrctl, an offline tool for UCR configuration
// documents and a thin client for a running ucrd.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pisanocami/usercontextrecord-sub002/internal/store"
	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
)

var version = "dev"

// now is replaced in tests.
var now = time.Now

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ucrctl",
		Short: "Inspect and govern UCR configuration documents",
		Long: `ucrctl works on UCR configuration documents (YAML) without a server.
It validates sections, fingerprints the safety-relevant fields, screens text
against the exclusion rules and advances the lifecycle status.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newValidateCmd(),
		newHashCmd(),
		newCheckCmd(),
		newTransitionCmd(),
		newHealthCmd(),
	)
	return root
}

// readConfiguration loads a YAML configuration from path, or stdin for "-".
func readConfiguration(cmd *cobra.Command, path string) (*ucr.Configuration, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	return store.DecodeYAML(data)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
