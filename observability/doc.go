// Package observability wires OpenTelemetry tracing and metrics into the
// lifecycle engine. InitTracer and InitMeter install global OTLP/HTTP
// providers; the Span and Attr constants plus ScanMetrics and
// MigrateMetrics give the scan and migrate paths a shared vocabulary.
//
//	tp, err := observability.InitTracer(ctx, &observability.TracerConfig{
//		ServiceName: "photoflow-lifecycle",
//		Endpoint:    "localhost:4318",
//		Insecure:    true,
//		SampleRate:  1,
//	})
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanScan)
//	defer span.End()
//
// Counter bundles attach to a named meter and stay inert until a
// provider is installed:
//
//	metrics, err := observability.NewScanMetrics(observability.Meter("photoflow.lifecycle"))
//	metrics.RecordRun(ctx, "s3", dryRun, evaluated, archived, deleted, blocked, failed)
package observability
