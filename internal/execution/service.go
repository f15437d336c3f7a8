// Package execution runs analysis modules behind the snapshot gate, optionally
// followed by council fan-out, synthesis and guardrail screening, and records
// every run to a RecordSink.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pisanocami/usercontextrecord-sub002/internal/council"
	"github.com/pisanocami/usercontextrecord-sub002/internal/guardrails"
	"github.com/pisanocami/usercontextrecord-sub002/internal/modules"
	"github.com/pisanocami/usercontextrecord-sub002/internal/snapshot"
)

const (
	instrumentationName   = "github.com/pisanocami/usercontextrecord-sub002/internal/execution"
	defaultPublishTimeout = 10 * time.Second
)

// ErrModuleNotFound is returned for an unknown module id.
var ErrModuleNotFound = errors.New("module not found")

// GateRejection is returned when the snapshot gate refuses a run. It carries
// the full decision so callers can report every missing or invalid section.
type GateRejection struct {
	Decision *snapshot.Decision
}

func (e *GateRejection) Error() string {
	if e.Decision == nil || e.Decision.Reason == "" {
		return "ucr gate refused execution"
	}
	return "ucr gate refused execution: " + e.Decision.Reason
}

// Result is the outcome of a module run.
type Result struct {
	Output   modules.Output
	Snapshot snapshot.Ref
	Record   ExecutionRecord

	// Persisted receives the sink outcome exactly once.
	Persisted <-chan error
}

// CouncilResult is a module run followed by council reasoning.
type CouncilResult struct {
	Result
	Perspectives []council.Perspective
	Failed       []council.FailedCouncil
	Synthesis    council.Synthesis
	Guardrails   council.GuardrailStatus
}

// Blocked reports whether the synthesized primary action needs a human
// override before it can be acted on.
func (r *CouncilResult) Blocked() bool {
	return r.Guardrails.RequiresHumanOverride
}

// Option configures a Service.
type Option func(*Service)

// WithSink sets where execution records are published.
func WithSink(sink RecordSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPublishTimeout bounds each record publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// Service wires the gate, module registry, councils and guardrails together.
type Service struct {
	gate           *snapshot.Gate
	registry       *modules.Registry
	councils       *council.Service
	engine         *guardrails.Engine
	sink           RecordSink
	logger         *zap.Logger
	tracer         trace.Tracer
	now            func() time.Time
	publishTimeout time.Duration
}

// NewService creates a Service.
func NewService(gate *snapshot.Gate, registry *modules.Registry, councils *council.Service, engine *guardrails.Engine, opts ...Option) (*Service, error) {
	switch {
	case gate == nil:
		return nil, errors.New("snapshot gate is required")
	case registry == nil:
		return nil, errors.New("module registry is required")
	case councils == nil:
		return nil, errors.New("council service is required")
	case engine == nil:
		return nil, errors.New("guardrail engine is required")
	}
	s := &Service{
		gate:           gate,
		registry:       registry,
		councils:       councils,
		engine:         engine,
		sink:           NopSink{},
		logger:         zap.NewNop(),
		tracer:         otel.Tracer(instrumentationName),
		now:            time.Now,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Execute gates the caller's active configuration and runs moduleID on the
// resulting snapshot.
func (s *Service) Execute(ctx context.Context, tenantID, userID, moduleID string) (*Result, error) {
	dec, err := s.gate.ValidateAndGate(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, dec, moduleID)
}

// ExecuteWithCouncil gates the caller's active configuration and runs moduleID
// followed by council fan-out, synthesis and guardrail screening.
func (s *Service) ExecuteWithCouncil(ctx context.Context, tenantID, userID, moduleID string) (*CouncilResult, error) {
	dec, err := s.gate.ValidateAndGate(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return s.RunWithCouncil(ctx, dec, moduleID)
}

// Run executes moduleID against an existing gate decision.
func (s *Service) Run(ctx context.Context, dec *snapshot.Decision, moduleID string) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "execution.run", trace.WithAttributes(
		attribute.String("module.id", moduleID),
	))
	defer span.End()

	out, err := s.runModule(ctx, dec, moduleID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	rec := s.record(dec.Snapshot, out)
	return &Result{
		Output:    out,
		Snapshot:  dec.Snapshot.Ref(),
		Record:    rec,
		Persisted: s.publish(ctx, rec),
	}, nil
}

// RunWithCouncil executes moduleID against an existing gate decision, then
// fans the output out to the module's councils. Synthesis starts only after
// every council call has settled and guardrails run only on the synthesis.
func (s *Service) RunWithCouncil(ctx context.Context, dec *snapshot.Decision, moduleID string) (*CouncilResult, error) {
	ctx, span := s.tracer.Start(ctx, "execution.run_with_council", trace.WithAttributes(
		attribute.String("module.id", moduleID),
	))
	defer span.End()

	out, err := s.runModule(ctx, dec, moduleID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	cfg := dec.Snapshot.Configuration
	fan := s.councils.FanOut(ctx, moduleID, out, BrandContext(dec.Snapshot))
	synthesis := s.councils.Synthesize(ctx, fan.Perspectives)
	guarded := council.ApplyGuardrailsToSynthesis(ctx, s.engine, synthesis, cfg.NegativeScope, cfg.StrategicIntent)

	span.SetAttributes(
		attribute.Int("council.perspectives", len(fan.Perspectives)),
		attribute.Int("council.failed", len(fan.Failed)),
		attribute.Bool("guardrails.passed", guarded.Status.Passed),
	)
	if guarded.Status.RequiresHumanOverride {
		s.logger.Info("synthesized action blocked by guardrails",
			zap.String("module_id", moduleID),
			zap.String("context_id", dec.Snapshot.ConfigurationID),
			zap.Strings("blocked_actions", guarded.Status.BlockedActions),
		)
	}

	rec := s.record(dec.Snapshot, out)
	rec.Perspectives = fan.Perspectives
	rec.Synthesis = &guarded.Synthesis
	rec.GuardrailStatus = &guarded.Status

	return &CouncilResult{
		Result: Result{
			Output:    out,
			Snapshot:  dec.Snapshot.Ref(),
			Record:    rec,
			Persisted: s.publish(ctx, rec),
		},
		Perspectives: fan.Perspectives,
		Failed:       fan.Failed,
		Synthesis:    guarded.Synthesis,
		Guardrails:   guarded.Status,
	}, nil
}

// Modules returns the module registry.
func (s *Service) Modules() *modules.Registry {
	return s.registry
}

func (s *Service) runModule(ctx context.Context, dec *snapshot.Decision, moduleID string) (modules.Output, error) {
	if dec == nil || !dec.Allowed || dec.Snapshot == nil {
		return modules.Output{}, &GateRejection{Decision: dec}
	}
	m, ok := s.registry.Get(moduleID)
	if !ok {
		return modules.Output{}, fmt.Errorf("%w: %s", ErrModuleNotFound, moduleID)
	}
	out, err := m.Execute(ctx, modules.Input{Snapshot: dec.Snapshot})
	if err != nil {
		return modules.Output{}, fmt.Errorf("execute module %s: %w", moduleID, err)
	}
	if out.ModuleID == "" {
		out.ModuleID = moduleID
	}
	return out, nil
}

func (s *Service) record(snap *snapshot.UCRSnapshot, out modules.Output) ExecutionRecord {
	return ExecutionRecord{
		ID:              uuid.NewString(),
		ContextID:       snap.ConfigurationID,
		TenantID:        snap.TenantID,
		UserID:          snap.UserID,
		ModuleID:        out.ModuleID,
		Status:          out.Status,
		Confidence:      out.Confidence,
		Insights:        out.Insights,
		Recommendations: out.Recommendations,
		RawOutput:       out.Raw,
		SnapshotHash:    snap.Hash,
		CreatedAt:       s.now().UTC(),
	}
}

// publish hands rec to the sink in the background. The publish outlives the
// request context but not the publish timeout.
func (s *Service) publish(ctx context.Context, rec ExecutionRecord) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
		defer cancel()
		errc <- s.sink.Publish(pctx, rec)
	}()
	return errc
}

// LogPersistence waits for a record publish to settle and logs the outcome.
// It never returns the error; persistence is best effort.
func LogPersistence(logger *zap.Logger, rec ExecutionRecord, persisted <-chan error) {
	if persisted == nil {
		return
	}
	if err := <-persisted; err != nil {
		logger.Warn("failed to persist execution record",
			zap.String("record_id", rec.ID),
			zap.String("context_id", rec.ContextID),
			zap.String("module_id", rec.ModuleID),
			zap.Error(err),
		)
		return
	}
	logger.Debug("execution record persisted",
		zap.String("record_id", rec.ID),
		zap.String("context_id", rec.ContextID),
	)
}
