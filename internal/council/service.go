package council

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pisanocami/usercontextrecord-sub002/internal/llm"
)

const (
	defaultCallTimeout      = 45 * time.Second
	defaultSynthesisTimeout = 60 * time.Second
)

var (
	// ErrCouncilNotFound is returned for an unknown council id.
	ErrCouncilNotFound = errors.New("council not found")

	// ErrCouncilInactive is returned when reasoning is requested from an
	// inactive council.
	ErrCouncilInactive = errors.New("council is inactive")
)

// Option configures a Service.
type Option func(*Service)

// WithCallTimeout bounds each council reasoning call.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.callTimeout = d
		}
	}
}

// WithSynthesisTimeout bounds the synthesis call.
func WithSynthesisTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.synthesisTimeout = d
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

// WithMetrics records council outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service runs council reasoning against an injected Reasoner.
type Service struct {
	catalog          atomic.Pointer[Catalog]
	reasoner         llm.Reasoner
	callTimeout      time.Duration
	synthesisTimeout time.Duration
	logger           *zap.Logger
	tracer           trace.Tracer
	metrics          *Metrics
}

// NewService creates a Service.
func NewService(catalog *Catalog, reasoner llm.Reasoner, opts ...Option) (*Service, error) {
	if catalog == nil {
		return nil, errors.New("council catalog is required")
	}
	if reasoner == nil {
		return nil, errors.New("reasoner is required")
	}
	s := &Service{
		reasoner:         reasoner,
		callTimeout:      defaultCallTimeout,
		synthesisTimeout: defaultSynthesisTimeout,
		logger:           zap.NewNop(),
		tracer:           otel.Tracer(instrumentationName),
	}
	s.catalog.Store(catalog)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Catalog returns the council catalog in use.
func (s *Service) Catalog() *Catalog {
	return s.catalog.Load()
}

// SetCatalog replaces the catalog. A fan-out already running keeps the
// councils it resolved at start. A nil catalog is ignored.
func (s *Service) SetCatalog(c *Catalog) {
	if c != nil {
		s.catalog.Store(c)
	}
}

// Reason asks one council for its perspective on moduleData. The call is
// bounded by the per-call timeout and by ctx.
func (s *Service) Reason(ctx context.Context, councilID string, moduleData any, brandContext string) (*Perspective, error) {
	c, ok := s.Catalog().Council(councilID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCouncilNotFound, councilID)
	}
	if !c.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrCouncilInactive, councilID)
	}
	return s.reason(ctx, c, moduleData, brandContext)
}

func (s *Service) reason(ctx context.Context, c Council, moduleData any, brandContext string) (*Perspective, error) {
	councilID := c.ID
	ctx, span := s.tracer.Start(ctx, "council.reason")
	defer span.End()
	span.SetAttributes(attribute.String("council_id", councilID))

	prompt, err := perspectivePrompt(c, moduleData, brandContext)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	start := time.Now()
	answer, err := s.reasoner.Complete(callCtx, prompt)
	if err == nil {
		var p *Perspective
		p, err = ParsePerspective(councilID, answer)
		if err == nil {
			s.metrics.recordPerspective(ctx, councilID, true, time.Since(start))
			return p, nil
		}
	}

	s.metrics.recordPerspective(ctx, councilID, false, time.Since(start))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, fmt.Errorf("council %s reasoning failed: %w", councilID, err)
}

// FanOut asks the owner and supporting councils of moduleID concurrently and
// waits for all of them. Councils that fail, time out or answer with
// unparseable output are dropped and logged; the rest keep fan-out order.
func (s *Service) FanOut(ctx context.Context, moduleID string, output any, brandContext string) FanOutResult {
	ctx, span := s.tracer.Start(ctx, "council.fanout")
	defer span.End()

	catalog := s.Catalog()
	var ids []string
	var councils []Council
	for _, id := range catalog.CouncilsFor(moduleID) {
		if c, ok := catalog.Council(id); ok && c.IsActive {
			ids = append(ids, id)
			councils = append(councils, c)
		} else {
			s.logger.Debug("skipping inactive council",
				zap.String("module_id", moduleID),
				zap.String("council_id", id))
		}
	}
	span.SetAttributes(
		attribute.String("module_id", moduleID),
		attribute.Int("councils", len(ids)),
	)

	results := make([]*Perspective, len(ids))
	errs := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range councils {
		g.Go(func() error {
			results[i], errs[i] = s.reason(gctx, c, output, brandContext)
			return nil
		})
	}
	_ = g.Wait()

	out := FanOutResult{
		ModuleID:     moduleID,
		Councils:     ids,
		Perspectives: []Perspective{},
	}
	if out.Councils == nil {
		out.Councils = []string{}
	}
	for i, id := range ids {
		if errs[i] != nil {
			s.logger.Warn("council perspective dropped",
				zap.String("module_id", moduleID),
				zap.String("council_id", id),
				zap.Error(errs[i]))
			out.Failed = append(out.Failed, FailedCouncil{CouncilID: id, Error: errs[i].Error()})
			continue
		}
		out.Perspectives = append(out.Perspectives, *results[i])
	}

	span.SetAttributes(
		attribute.Int("perspectives", len(out.Perspectives)),
		attribute.Int("failed", len(out.Failed)),
	)
	return out
}

// Synthesize merges perspectives with one reasoning call. No perspectives
// yield EmptySynthesis; a failed or unparseable call yields
// FallbackSynthesis. Synthesize never returns an error.
func (s *Service) Synthesize(ctx context.Context, perspectives []Perspective) Synthesis {
	ctx, span := s.tracer.Start(ctx, "council.synthesize")
	defer span.End()
	span.SetAttributes(attribute.Int("perspectives", len(perspectives)))

	if len(perspectives) == 0 {
		s.metrics.recordSynthesis(ctx, "empty")
		return EmptySynthesis()
	}

	synthesis, err := s.synthesize(ctx, perspectives)
	if err != nil {
		s.logger.Warn("synthesis failed, using fallback",
			zap.Int("perspectives", len(perspectives)),
			zap.Bool("fallback", true),
			zap.Error(err))
		span.RecordError(err)
		s.metrics.recordSynthesis(ctx, "fallback")
		return FallbackSynthesis(perspectives)
	}

	s.metrics.recordSynthesis(ctx, "model")
	return synthesis
}

func (s *Service) synthesize(ctx context.Context, perspectives []Perspective) (Synthesis, error) {
	prompt, err := synthesisPrompt(perspectives)
	if err != nil {
		return Synthesis{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.synthesisTimeout)
	defer cancel()

	answer, err := s.reasoner.Complete(callCtx, prompt)
	if err != nil {
		return Synthesis{}, err
	}
	return parseSynthesis(answer, perspectives)
}

// OrderPerspectives turns a council-keyed map into a slice in catalog order,
// with unknown councils last by id. The map key is the council id.
func (s *Service) OrderPerspectives(byCouncil map[string]Perspective) []Perspective {
	catalog := s.Catalog()
	out := make([]Perspective, 0, len(byCouncil))
	for id, p := range byCouncil {
		p.CouncilID = id
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Perspective) int {
		if ra, rb := catalog.rank(a.CouncilID), catalog.rank(b.CouncilID); ra != rb {
			return ra - rb
		}
		switch {
		case a.CouncilID < b.CouncilID:
			return -1
		case a.CouncilID > b.CouncilID:
			return 1
		}
		return 0
	})
	return out
}
