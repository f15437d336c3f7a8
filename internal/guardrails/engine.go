package guardrails

import (
	"context"
	"time"

	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
)

// Option configures an Engine.
type Option func(*Engine)

// WithMatcher replaces the matcher used for entries of match type t.
func WithMatcher(t ucr.MatchType, m Matcher) Option {
	return func(e *Engine) {
		e.matchers[t] = m
	}
}

// WithClock sets the time source used to skip expired entries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithMetrics records every check on m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine screens text against Guardrails. It holds no per-check state and is
// safe for concurrent use.
type Engine struct {
	matchers map[ucr.MatchType]Matcher
	now      func() time.Time
	metrics  *Metrics
}

// NewEngine creates an Engine with TermMatcher for both match types.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		matchers: map[ucr.MatchType]Matcher{
			ucr.MatchExact:    TermMatcher{},
			ucr.MatchSemantic: TermMatcher{},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check screens text against g.
func (e *Engine) Check(text string, g Guardrails) CheckResult {
	return e.CheckContext(context.Background(), text, g)
}

// CheckContext screens text against g, recording metrics under ctx.
func (e *Engine) CheckContext(ctx context.Context, text string, g Guardrails) CheckResult {
	result := CheckResult{
		Violations:       []Violation{},
		EnforcementLevel: g.Level(),
	}

	severity := SeverityWarn
	if g.NegativeScope.EnforcementRules.HardExclusion {
		severity = SeverityBlock
	}

	now := e.now()
	for _, kind := range ucr.ExclusionKinds() {
		for _, entry := range g.NegativeScope.Entries(kind) {
			if !entry.Active(now) {
				continue
			}
			anchor, ok := e.matcher(entry.MatchType).Match(text, kind, entry.Value)
			if !ok {
				continue
			}
			result.add(Violation{
				Type:        violationTypes[kind],
				Severity:    severity,
				MatchedTerm: entry.Value,
				Context:     ExtractContext(text, anchor),
				Source:      sources[kind],
			})
		}
	}

	for _, avoid := range g.StrategicIntent.Avoid {
		anchor, ok := MatchTokens(text, avoid)
		if !ok {
			continue
		}
		result.add(Violation{
			Type:        ViolationStrategicMisalignment,
			Severity:    SeverityWarn,
			MatchedTerm: avoid,
			Context:     ExtractContext(text, anchor),
			Source:      avoidSource,
		})
	}

	result.Passed = result.BlockedCount == 0
	e.metrics.record(ctx, result)
	return result
}

// FilterRecommendations screens each recommendation and splits the list.
func (e *Engine) FilterRecommendations(recommendations []string, g Guardrails) FilterResult {
	return e.FilterRecommendationsContext(context.Background(), recommendations, g)
}

// FilterRecommendationsContext is FilterRecommendations with a context for
// metrics.
func (e *Engine) FilterRecommendationsContext(ctx context.Context, recommendations []string, g Guardrails) FilterResult {
	out := FilterResult{
		Allowed:    []string{},
		Blocked:    []string{},
		Violations: []Violation{},
	}
	for _, rec := range recommendations {
		r := e.CheckContext(ctx, rec, g)
		if r.Passed {
			out.Allowed = append(out.Allowed, rec)
		} else {
			out.Blocked = append(out.Blocked, rec)
		}
		out.Violations = append(out.Violations, r.Violations...)
	}
	return out
}

func (e *Engine) matcher(t ucr.MatchType) Matcher {
	if m, ok := e.matchers[t]; ok {
		return m
	}
	return e.matchers[ucr.MatchExact]
}

func (r *CheckResult) add(v Violation) {
	r.Violations = append(r.Violations, v)
	switch v.Severity {
	case SeverityBlock:
		r.BlockedCount++
	case SeverityWarn:
		r.WarnCount++
	}
}
