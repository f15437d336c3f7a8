package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/pisanocami/usercontextrecord-sub002/internal/config"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNew_NilConfig(t *testing.T) {
	tel, err := New(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Nil(t, tel)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	tel, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_DisabledServesPrometheus(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { _ = tel.Shutdown(context.Background()) }()

	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())

	counter, err := tel.Meter("ucr.test").Int64Counter("ucr.test.gate_decisions")
	require.NoError(t, err)
	counter.Add(context.Background(), 3, metricAttr("allowed"))

	body := scrape(t, tel.MetricsHandler())
	assert.Contains(t, body, "ucr_test_gate_decisions_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestNew_EnabledWithInjectedExporter(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Metrics.Enabled = false

	tel, err := New(context.Background(), cfg, zaptest.NewLogger(t), WithTraceExporter(exporter))
	require.NoError(t, err)
	assert.True(t, tel.IsEnabled())

	_, span := tel.Tracer("ucr.test").Start(context.Background(), "council.fanout")
	span.End()

	require.NoError(t, tel.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "council.fanout", spans[0].Name)

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
	assert.False(t, tel.IsEnabled())
}

func TestTelemetry_ShutdownWithTimeout(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Shutdown.Timeout = config.Duration(100 * time.Millisecond)

	tel, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, tel.Shutdown(ctx))
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.MetricsHandler()
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})
	assert.Equal(t, HealthStatus{Healthy: false, Degraded: true}, tel.Health())
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()

	tracer := tt.Tracer("test")
	_, span := tracer.Start(context.Background(), "gate.evaluate")
	span.SetAttributes(
		attribute.String("ucr.context_id", "ctx-acme"),
		attribute.Int64("ucr.version", 1),
		attribute.Bool("ucr.allowed", true),
	)
	span.End()

	assert.Len(t, tt.Spans(), 1)
	assert.Nil(t, tt.SpanByName("missing"))
	tt.AssertSpanExists(t, "gate.evaluate")
	tt.AssertSpanAttribute(t, "gate.evaluate", "ucr.context_id", "ctx-acme")
	tt.AssertSpanAttribute(t, "gate.evaluate", "ucr.version", int64(1))
	tt.AssertSpanAttribute(t, "gate.evaluate", "ucr.allowed", true)
}

func TestTestTelemetry_Metrics(t *testing.T) {
	tt := NewTestTelemetry()

	counter, err := tt.Meter("test").Int64Counter("ucr.test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	rm, err := tt.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, "ucr.test.counter", rm.ScopeMetrics[0].Metrics[0].Name)

	require.NoError(t, tt.Shutdown(context.Background()))
}

func metricAttr(status string) metric.AddOption {
	return metric.WithAttributes(attribute.String("status", status))
}
