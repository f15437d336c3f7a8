// Package telemetry provides OpenTelemetry instrumentation for ucrd.
//
// Every instrumented package resolves its tracer and meter from the otel
// globals, which New installs. Metrics are always collected into a
// Prometheus registry served by MetricsHandler on /metrics. Traces and OTLP
// metric export are pushed to a collector only when enabled:
//
//	observability:
//	  enable_telemetry: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  service_name: "ucrd"
//	  sample_rate: 1.0
//
// Exporter failures mark the instance degraded and never fail startup.
//
// Use TestTelemetry in tests to record spans and metrics in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "gate.evaluate")
//	span.End()
//	tt.AssertSpanExists(t, "gate.evaluate")
package telemetry
