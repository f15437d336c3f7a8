// Package http serves the UCR API: council reasoning, gated module execution,
// configuration lifecycle and guardrail screening.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pisanocami/usercontextrecord-sub002/internal/council"
	"github.com/pisanocami/usercontextrecord-sub002/internal/execution"
	"github.com/pisanocami/usercontextrecord-sub002/internal/guardrails"
	"github.com/pisanocami/usercontextrecord-sub002/internal/logging"
	"github.com/pisanocami/usercontextrecord-sub002/internal/snapshot"
	"github.com/pisanocami/usercontextrecord-sub002/internal/store"
)

// Identity headers.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

const identityKey = "ucr.identity"

// Server provides HTTP endpoints for the UCR engine.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Store    store.ConfigurationStore
	Gate     *snapshot.Gate
	Councils *council.Service
	Executor *execution.Service
	Engine   *guardrails.Engine

	// Metrics instruments every request when set.
	Metrics *HTTPMetrics
	// MetricsHandler serves GET /metrics. Defaults to promhttp.Handler().
	MetricsHandler http.Handler
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	switch {
	case logger == nil:
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	case deps.Store == nil:
		return nil, fmt.Errorf("configuration store cannot be nil")
	case deps.Gate == nil:
		return nil, fmt.Errorf("snapshot gate cannot be nil")
	case deps.Councils == nil:
		return nil, fmt.Errorf("council service cannot be nil")
	case deps.Executor == nil:
		return nil, fmt.Errorf("execution service cannot be nil")
	case deps.Engine == nil:
		return nil, fmt.Errorf("guardrail engine cannot be nil")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.MetricsHandler == nil {
		deps.MetricsHandler = promhttp.Handler()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = echoValidator{}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	})
	if deps.Metrics != nil {
		e.Use(deps.Metrics.MetricsMiddleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			duration := time.Since(start)

			fields := append(logging.ContextFields(c.Request().Context()),
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
			)
			if c.Response().Status >= http.StatusInternalServerError {
				logger.Error("http request", append(fields, zap.Error(err))...)
			} else {
				logger.Info("http request", fields...)
			}
			return nil
		}
	})

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(s.deps.MetricsHandler))

	v1 := s.echo.Group("/api/v1")

	v1.GET("/councils", s.handleListCouncils)
	v1.GET("/councils/:id", s.handleGetCouncil)
	v1.POST("/councils/:id/reason", s.handleReason)
	v1.POST("/councils/synthesize", s.handleSynthesize)
	v1.GET("/modules", s.handleListModules)

	v1.GET("/context/validation", s.handleContextValidation, s.requireIdentity)
	v1.POST("/context/transition", s.handleTransition, s.requireIdentity)
	v1.POST("/guardrails/check", s.handleGuardrailsCheck, s.requireIdentity)

	gate := snapshot.RequireUCR(s.deps.Gate, identityOf)
	v1.POST("/modules/:id/execute", s.handleExecute, s.requireIdentity, gate)
	v1.POST("/modules/:id/execute-with-council", s.handleExecuteWithCouncil, s.requireIdentity, gate)
}

// requireIdentity rejects requests without valid identity headers and adds
// the identity to the request context.
func (s *Server) requireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		tenantID := req.Header.Get(HeaderTenantID)
		userID := req.Header.Get(HeaderUserID)
		if tenantID == "" || userID == "" {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("%s and %s headers are required", HeaderTenantID, HeaderUserID))
		}
		ctx, err := logging.WithIdentity(req.Context(), tenantID, userID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		c.SetRequest(req.WithContext(ctx))
		c.Set(identityKey, logging.IdentityFromContext(ctx))
		return next(c)
	}
}

// identityOf returns the identity stored by requireIdentity.
func identityOf(c echo.Context) (tenantID, userID string, err error) {
	id, ok := c.Get(identityKey).(*logging.Identity)
	if !ok || id == nil {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "missing identity")
	}
	return id.TenantID, id.UserID, nil
}

// bindAndValidate decodes the request body into req and validates it.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// notFoundOr500 maps store.ErrNotFound to 404 and anything else to 500.
func notFoundOr500(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "no active configuration")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, msg).SetInternal(err)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}
