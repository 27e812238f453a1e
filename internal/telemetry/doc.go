// Package telemetry configures OpenTelemetry tracing and metrics for ragstore.
//
// New installs OTLP-backed global tracer and meter providers (gRPC or
// http/protobuf). Vector store backends obtain their tracers and meters
// through the otel globals, so no handle needs to be passed to them.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSection(cfg.Telemetry))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Telemetry failures do not fail startup: a provider that cannot be built
// marks the instance degraded and the no-op globals stay in place.
//
// Tests use TestTelemetry:
//
//	tt := telemetry.NewTestTelemetry()
//	tt.Install(t)
//	// ... exercise a store ...
//	tt.AssertSpanExists(t, "MemoryStore.SimilaritySearch")
package telemetry
