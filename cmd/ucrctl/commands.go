package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pisanocami/usercontextrecord-sub002/internal/guardrails"
	"github.com/pisanocami/usercontextrecord-sub002/internal/lifecycle"
	"github.com/pisanocami/usercontextrecord-sub002/internal/snapshot"
	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
	"github.com/pisanocami/usercontextrecord-sub002/internal/validation"
)

// errInvalid is returned after the report is printed so the exit code
// reflects the outcome.
var errInvalid = errors.New("configuration is not valid")

func newValidateCmd() *cobra.Command {
	var section string
	cmd := &cobra.Command{
		Use:   "validate <file|->",
		Short: "Validate every section of a configuration",
		Long: `Validate a configuration and print the full validation result as JSON.

Examples:
  # Validate a document
  ucrctl validate acme.yaml

  # Validate only the negative scope
  ucrctl validate --section negative_scope acme.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfiguration(cmd, args[0])
			if err != nil {
				return err
			}
			if section != "" {
				s := ucr.Section(section)
				if !s.Valid() {
					return fmt.Errorf("unknown section %q", section)
				}
				sv := validation.ValidateSection(cfg, s, now())
				if err := printJSON(cmd, sv); err != nil {
					return err
				}
				if !sv.Valid {
					return errInvalid
				}
				return nil
			}

			result := validation.ValidateConfiguration(cfg, now())
			if err := printJSON(cmd, result); err != nil {
				return err
			}
			if !result.IsValid {
				return errInvalid
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&section, "section", "", "validate a single section")
	return cmd
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file|->",
		Short: "Print the snapshot hash of a configuration",
		Long: `Print the fingerprint of the safety-relevant fields of a configuration.
Two documents with the same hash are governed by the same rules.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfiguration(cmd, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), snapshot.Hash(cfg))
			return err
		},
	}
}

func newCheckCmd() *cobra.Command {
	var recommendations bool
	cmd := &cobra.Command{
		Use:   "check <file> <text>...",
		Short: "Screen text against the configuration guardrails",
		Long: `Screen text against the negative scope and strategic avoid list.

Examples:
  # Check one sentence
  ucrctl check acme.yaml "Announce layoffs next quarter"

  # Filter a list of recommendations
  ucrctl check --recommendations acme.yaml "Expand to Canada" "Cut staff"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfiguration(cmd, args[0])
			if err != nil {
				return err
			}
			engine := guardrails.NewEngine(guardrails.WithClock(now))
			g := guardrails.FromConfiguration(cfg)

			if recommendations {
				result := engine.FilterRecommendationsContext(cmd.Context(), args[1:], g)
				if err := printJSON(cmd, result); err != nil {
					return err
				}
				if len(result.Blocked) > 0 {
					return fmt.Errorf("%d recommendation(s) blocked", len(result.Blocked))
				}
				return nil
			}

			result := engine.CheckContext(cmd.Context(), strings.Join(args[1:], " "), g)
			if err := printJSON(cmd, result); err != nil {
				return err
			}
			if !result.Passed {
				return fmt.Errorf("text blocked by %d violation(s)", result.BlockedCount)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&recommendations, "recommendations", false, "treat each argument as a separate recommendation")
	return cmd
}

func newTransitionCmd() *cobra.Command {
	var (
		to    string
		write bool
	)
	cmd := &cobra.Command{
		Use:   "transition <file> --to <status>",
		Short: "Advance the lifecycle status of a configuration",
		Long: `Apply a lifecycle transition and print the resulting governance.
With --write the document is rewritten in place.

Examples:
  ucrctl transition acme.yaml --to AI_ANALYSIS_RUN
  ucrctl transition acme.yaml --to DRAFT_AI --write`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ucr.ContextStatus(strings.ToUpper(to))
			if !target.Valid() {
				return fmt.Errorf("unknown status %q", to)
			}
			cfg, err := readConfiguration(cmd, args[0])
			if err != nil {
				return err
			}

			at := now()
			result := validation.ValidateConfiguration(cfg, at)
			gov, err := lifecycle.Apply(cfg, target, &result, at)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, gov); err != nil {
				return err
			}
			if !write {
				return nil
			}
			if args[0] == "-" {
				return errors.New("--write needs a file argument")
			}

			cfg.Governance = gov
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encoding configuration: %w", err)
			}
			return os.WriteFile(args[0], data, 0o600)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target status")
	cmd.Flags().BoolVar(&write, "write", false, "rewrite the document with the new governance")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newHealthCmd() *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check ucrd server health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, strings.TrimRight(serverURL, "/")+"/health", nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server unhealthy: %s", resp.Status)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", serverURL)
			return err
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "ucrd server URL")
	return cmd
}
