// Package mcp exposes the UCR engine as MCP tools.
//
// Tools call the same services as the HTTP API: the snapshot gate, the
// guardrail engine and the execution service. Gate refusals and blocked
// syntheses are reported as tool errors carrying the UCR_BLOCKED or
// GUARDRAIL_VIOLATION code.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/pisanocami/usercontextrecord-sub002/internal/council"
	"github.com/pisanocami/usercontextrecord-sub002/internal/execution"
	"github.com/pisanocami/usercontextrecord-sub002/internal/guardrails"
	"github.com/pisanocami/usercontextrecord-sub002/internal/snapshot"
	"github.com/pisanocami/usercontextrecord-sub002/internal/store"
)

// Server serves UCR tools over an MCP transport.
type Server struct {
	mcp     *mcp.Server
	deps    Deps
	metrics *Metrics
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "ucrd")
	Name string

	// Version is the server version (default: "dev")
	Version string

	Logger  *zap.Logger
	Metrics *Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ucrd",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// Deps are the engine services the tools call.
type Deps struct {
	Store    store.ConfigurationStore
	Gate     *snapshot.Gate
	Councils *council.Service
	Executor *execution.Service
	Engine   *guardrails.Engine
}

// NewServer creates an MCP server with every UCR tool registered.
func NewServer(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	switch {
	case deps.Store == nil:
		return nil, errors.New("configuration store is required")
	case deps.Gate == nil:
		return nil, errors.New("snapshot gate is required")
	case deps.Councils == nil:
		return nil, errors.New("council service is required")
	case deps.Executor == nil:
		return nil, errors.New("execution service is required")
	case deps.Engine == nil:
		return nil, errors.New("guardrail engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(logger)
	}
	name, version := cfg.Name, cfg.Version
	if name == "" {
		name = "ucrd"
	}
	if version == "" {
		version = "dev"
	}

	s := &Server{
		mcp:     mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		deps:    deps,
		metrics: metrics,
		logger:  logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on transport.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}
