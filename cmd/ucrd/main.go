// Ucrd serves the UCR engine over HTTP, or as an MCP tool server on stdio.
//
// It loads the configuration, wires the snapshot gate, council reasoning,
// guardrail engine and execution record sink, then serves until SIGINT or
// SIGTERM.
//
// Usage:
//
//	# Start with defaults (in-memory store, no NATS)
//	ucrd
//
//	# Use a config file and override through the environment
//	UCR_SERVER_HTTP_PORT=9090 UCR_REASONING_API_KEY=sk-... ucrd -config /etc/ucr/ucrd.yaml
//
//	# Serve the engine as MCP tools over stdio
//	ucrd -config /etc/ucr/ucrd.yaml mcp
//
//	# Print version information
//	ucrd version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pisanocami/usercontextrecord-sub002/internal/config"
	"github.com/pisanocami/usercontextrecord-sub002/internal/council"
	"github.com/pisanocami/usercontextrecord-sub002/internal/execution"
	"github.com/pisanocami/usercontextrecord-sub002/internal/guardrails"
	ucrhttp "github.com/pisanocami/usercontextrecord-sub002/internal/http"
	"github.com/pisanocami/usercontextrecord-sub002/internal/llm"
	"github.com/pisanocami/usercontextrecord-sub002/internal/logging"
	ucrmcp "github.com/pisanocami/usercontextrecord-sub002/internal/mcp"
	"github.com/pisanocami/usercontextrecord-sub002/internal/modules"
	"github.com/pisanocami/usercontextrecord-sub002/internal/snapshot"
	"github.com/pisanocami/usercontextrecord-sub002/internal/store"
	"github.com/pisanocami/usercontextrecord-sub002/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("UCR_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	serve := run
	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		case "mcp":
			serve = runMCP
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  ucrd [-config path]       Start the UCR daemon\n")
			fmt.Fprintf(os.Stderr, "  ucrd [-config path] mcp   Serve MCP tools over stdio\n")
			fmt.Fprintf(os.Stderr, "  ucrd version              Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func printVersion() {
	fmt.Printf("ucrd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// app is everything both serving modes share.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	tel    *telemetry.Telemetry
	deps   *dependencies
	svc    *services

	closers []func()
}

// setup loads the configuration and builds the engine services.
func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.ConfigFor(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}
	logCfg.Fields["service"] = cfg.Observability.ServiceName
	appLogger, err := logging.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &app{cfg: cfg, logger: appLogger.Underlying()}
	a.closers = append(a.closers, func() { _ = appLogger.Sync() })

	a.tel, err = telemetry.New(ctx, telemetry.ConfigFrom(cfg.Observability, version), a.logger.Named("telemetry"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := a.tel.Shutdown(context.Background()); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	})

	a.deps, err = initDependencies(cfg, a.logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	a.closers = append(a.closers, a.deps.Close)

	a.svc, err = initServices(cfg, a.deps, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Council.CatalogPath != "" {
		w, err := council.WatchCatalog(ctx, cfg.Council.CatalogPath, a.svc.councils,
			council.WithWatchLogger(a.logger.Named("catalog")))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, w.Stop)
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func run(ctx context.Context, configPath string) error {
	a, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger

	logger.Info("Starting ucrd",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("telemetry", a.tel.IsEnabled()),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()))

	srv, err := initServer(cfg, a.deps, a.svc, a.tel, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("Server shutdown complete")
	return err
}

// runMCP serves the engine as MCP tools on stdio until the client
// disconnects or ctx is cancelled. Logs go to stderr.
func runMCP(ctx context.Context, configPath string) error {
	a, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := newMCPServer(a)
	if err != nil {
		return err
	}
	a.logger.Info("Starting ucrd MCP server", zap.String("version", version))
	return srv.Run(ctx)
}

func newMCPServer(a *app) (*ucrmcp.Server, error) {
	srv, err := ucrmcp.NewServer(&ucrmcp.Config{
		Name:    "ucrd",
		Version: version,
		Logger:  a.logger.Named("mcp"),
		Metrics: ucrmcp.NewMetrics(a.logger),
	}, ucrmcp.Deps{
		Store:    a.deps.store,
		Gate:     a.svc.gate,
		Councils: a.svc.councils,
		Executor: a.svc.executor,
		Engine:   a.svc.engine,
	})
	if err != nil {
		return nil, fmt.Errorf("creating mcp server: %w", err)
	}
	return srv, nil
}

// dependencies holds the infrastructure ucrd talks to.
type dependencies struct {
	store    store.ConfigurationStore
	natsConn *nats.Conn
	sink     execution.RecordSink
	reasoner llm.Reasoner
	catalog  *council.Catalog
}

// initDependencies opens the configuration store, the reasoning client and
// the execution record sink.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{}

	if cfg.Store.Root != "" {
		dir, err := store.NewDirStore(cfg.Store.Root, logger.Named("store"))
		if err != nil {
			return nil, fmt.Errorf("opening configuration store: %w", err)
		}
		deps.store = dir
	} else {
		logger.Warn("store.root not set, using an empty in-memory store")
		deps.store = store.NewMemoryStore()
	}

	catalog, err := council.LoadCatalog(cfg.Council.CatalogPath)
	if err != nil {
		return nil, err
	}
	deps.catalog = catalog

	reasoner, err := llm.New(llm.Config{
		BaseURL:     cfg.Reasoning.BaseURL,
		Model:       cfg.Reasoning.Model,
		APIKey:      cfg.Reasoning.APIKey,
		Temperature: cfg.Reasoning.Temperature,
		MaxTokens:   cfg.Reasoning.MaxTokens,
		RateLimit:   cfg.Reasoning.RateLimit,
		Burst:       cfg.Reasoning.Burst,
		MaxRetries:  cfg.Reasoning.MaxRetries,
	}, logger.Named("llm"))
	if err != nil {
		return nil, err
	}
	if !cfg.Reasoning.APIKey.IsSet() {
		logger.Warn("reasoning.api_key not set, council calls will fail against hosted endpoints",
			zap.String("base_url", cfg.Reasoning.BaseURL))
	}
	deps.reasoner = reasoner

	deps.sink = execution.NopSink{}
	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("ucrd"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("nats disconnected", zap.Error(err))
				}
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("connecting to nats: %w", err)
		}
		sink, err := execution.NewNATSSink(nc, cfg.NATS.SubjectPrefix)
		if err != nil {
			nc.Close()
			return nil, err
		}
		deps.natsConn = nc
		deps.sink = sink
		logger.Info("publishing execution records to nats",
			zap.String("url", cfg.NATS.URL),
			zap.String("subject_prefix", cfg.NATS.SubjectPrefix))
	}

	return deps, nil
}

// Close drains the NATS connection.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		_ = d.natsConn.Drain()
	}
}

// services are the engine components both serving modes expose.
type services struct {
	gate     *snapshot.Gate
	councils *council.Service
	engine   *guardrails.Engine
	executor *execution.Service
}

func initServices(cfg *config.Config, deps *dependencies, logger *zap.Logger) (*services, error) {
	councils, err := council.NewService(deps.catalog, deps.reasoner,
		council.WithCallTimeout(cfg.Council.CallTimeout.Duration()),
		council.WithSynthesisTimeout(cfg.Council.SynthesisTimeout.Duration()),
		council.WithLogger(logger.Named("council")),
		council.WithMetrics(council.NewMetrics(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating council service: %w", err)
	}

	gate := snapshot.NewGate(deps.store, snapshot.WithLogger(logger.Named("gate")))
	engine := guardrails.NewEngine(guardrails.WithMetrics(guardrails.NewMetrics(logger)))

	executor, err := execution.NewService(gate, modules.NewDefaultRegistry(), councils, engine,
		execution.WithSink(deps.sink),
		execution.WithLogger(logger.Named("execution")),
	)
	if err != nil {
		return nil, fmt.Errorf("creating execution service: %w", err)
	}
	return &services{gate: gate, councils: councils, engine: engine, executor: executor}, nil
}

// initServer wires the engine services into the HTTP server.
func initServer(cfg *config.Config, deps *dependencies, svc *services, tel *telemetry.Telemetry, logger *zap.Logger) (*ucrhttp.Server, error) {
	srv, err := ucrhttp.NewServer(ucrhttp.Deps{
		Store:          deps.store,
		Gate:           svc.gate,
		Councils:       svc.councils,
		Executor:       svc.executor,
		Engine:         svc.engine,
		Metrics:        ucrhttp.NewHTTPMetrics(logger),
		MetricsHandler: tel.MetricsHandler(),
	}, logger.Named("http"), &ucrhttp.Config{Host: cfg.Server.Host, Port: cfg.Server.Port})
	if err != nil {
		return nil, fmt.Errorf("creating http server: %w", err)
	}
	return srv, nil
}
