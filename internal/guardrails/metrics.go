package guardrails

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/pisanocami/usercontextrecord-sub002/internal/guardrails"

// Metrics counts guardrail checks and violations.
type Metrics struct {
	checks     metric.Int64Counter
	violations metric.Int64Counter
}

// NewMetrics registers the guardrail instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	var err error
	m.checks, err = meter.Int64Counter(
		"ucr.guardrails.checks_total",
		metric.WithDescription("Texts screened by the guardrail engine, labeled by result (passed, blocked)."),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		logger.Warn("failed to create guardrail checks counter", zap.Error(err))
	}

	m.violations, err = meter.Int64Counter(
		"ucr.guardrails.violations_total",
		metric.WithDescription("Guardrail violations labeled by type and severity."),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		logger.Warn("failed to create guardrail violations counter", zap.Error(err))
	}
	return m
}

func (m *Metrics) record(ctx context.Context, r CheckResult) {
	if m == nil {
		return
	}
	if m.checks != nil {
		result := "passed"
		if !r.Passed {
			result = "blocked"
		}
		m.checks.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
	if m.violations != nil {
		for _, v := range r.Violations {
			m.violations.Add(ctx, 1, metric.WithAttributes(
				attribute.String("type", string(v.Type)),
				attribute.String("severity", string(v.Severity)),
			))
		}
	}
}
