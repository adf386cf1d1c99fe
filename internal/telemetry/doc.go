// Package telemetry provides OpenTelemetry tracing and metrics for contentd.
//
// Telemetry is disabled by default. When enabled it exports spans and
// metrics over OTLP (gRPC or HTTP/protobuf) to a collector. Provider
// failures never stop the daemon: the instance is marked degraded and the
// global no-op providers are used instead.
//
// # Usage
//
//	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	orch := orchestrator.New(cfg, orchestrator.WithTelemetry(tel.Tracer("contentd.orchestrator"), tel.Meter("contentd.orchestrator")))
//
// # Testing
//
// NewTestTelemetry records spans in memory and exposes a manual metric
// reader so tests can assert on attempt counters and spans.
package telemetry
