package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/sean-she/photoflow-storage/logger"
)

// scopeName is the instrumentation scope for spans started through this
// package, per the OpenTelemetry convention of using the import path.
const scopeName = "github.com/sean-she/photoflow-storage/observability"

// Span names used by the scan and migrate paths.
const (
	SpanScan    = "lifecycle.scan"
	SpanMigrate = "migrate.transfer"
)

// Attribute keys shared across spans and log lines.
const (
	AttrExecutionID = "execution.id"
	AttrProvider    = "storage.provider"
)

// TracerConfig carries the settings for the OTLP trace exporter and the
// sampler installed by InitTracer.
type TracerConfig struct {
	ServiceName    string
	ServiceVersion string
	// Environment tags every exported span (development, staging, production).
	Environment string
	// Endpoint is the OTLP/HTTP collector address as host:port.
	Endpoint string
	// Insecure sends spans over plain HTTP, for local collectors only.
	Insecure bool
	// SampleRate is the fraction of traces to keep, in [0, 1].
	SampleRate float64
}

// InitTracer installs a global tracer provider that batches spans to an
// OTLP/HTTP collector. The caller owns the returned provider and must
// call Shutdown on exit to flush buffered spans.
func InitTracer(ctx context.Context, cfg *TracerConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("observability: trace exporter: %w", err)
	}

	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Debug("tracing enabled", logger.Fields(
		"endpoint", cfg.Endpoint,
		"sample_rate", cfg.SampleRate,
	))
	return tp, nil
}

// sampler maps a configured rate onto an SDK sampler. Rates at or past
// the ends collapse to the unconditional samplers so the ratio sampler
// never sees a degenerate argument.
func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1:
		return sdktrace.AlwaysSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

// newResource identifies the exporting process to the collector. The
// service attributes are schemaless so they merge cleanly with whatever
// schema version the SDK default resource carries.
func newResource(name, version, environment string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(name),
			semconv.ServiceVersion(version),
			semconv.DeploymentEnvironment(environment),
		),
	)
}

// StartSpan opens a span named after one of the Span constants. The
// returned context carries the span for SetSpanAttribute and SetSpanError.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(scopeName).Start(ctx, name, opts...)
}

// SetSpanAttribute records a key on the span in ctx, mapping Go scalars
// onto their attribute kinds. Other types are stringified. Outside a
// recording span this is a no-op.
func SetSpanAttribute(ctx context.Context, key string, value any) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	default:
		span.SetAttributes(attribute.String(key, fmt.Sprint(v)))
	}
}

// SetSpanError records err on the span in ctx and marks the span failed.
// Outside a recording span, or with a nil error, this is a no-op.
func SetSpanError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
