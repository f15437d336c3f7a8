package council

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/pisanocami/usercontextrecord-sub002/internal/council"

// Metrics holds the council instruments.
type Metrics struct {
	perspectives metric.Int64Counter
	syntheses    metric.Int64Counter
	callDur      metric.Float64Histogram
}

// NewMetrics registers the council instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	var err error
	m.perspectives, err = meter.Int64Counter(
		"ucr.council.perspectives_total",
		metric.WithDescription("Council reasoning calls labeled by council and outcome (ok, failed)."),
		metric.WithUnit("{perspective}"),
	)
	if err != nil {
		logger.Warn("failed to create perspectives counter", zap.Error(err))
	}

	m.syntheses, err = meter.Int64Counter(
		"ucr.council.syntheses_total",
		metric.WithDescription("Syntheses labeled by mode (model, fallback, empty)."),
		metric.WithUnit("{synthesis}"),
	)
	if err != nil {
		logger.Warn("failed to create syntheses counter", zap.Error(err))
	}

	m.callDur, err = meter.Float64Histogram(
		"ucr.council.call_duration_seconds",
		metric.WithDescription("Duration of a single council reasoning call in seconds."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		logger.Warn("failed to create call duration histogram", zap.Error(err))
	}
	return m
}

func (m *Metrics) recordPerspective(ctx context.Context, councilID string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	attrs := metric.WithAttributes(attribute.String("council", councilID), attribute.String("outcome", outcome))
	if m.perspectives != nil {
		m.perspectives.Add(ctx, 1, attrs)
	}
	if m.callDur != nil {
		m.callDur.Record(ctx, d.Seconds(), attrs)
	}
}

func (m *Metrics) recordSynthesis(ctx context.Context, mode string) {
	if m == nil || m.syntheses == nil {
		return
	}
	m.syntheses.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}
