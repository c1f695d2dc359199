package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTestTracer routes spans started through the package helpers into
// an in-memory exporter and restores the previous provider afterwards.
func installTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		tp.Shutdown(context.Background())
	})
	return exporter
}

func TestSamplerSelection(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want sdktrace.Sampler
	}{
		{"negative drops everything", -0.5, sdktrace.NeverSample()},
		{"zero drops everything", 0, sdktrace.NeverSample()},
		{"fraction samples by trace id", 0.25, sdktrace.TraceIDRatioBased(0.25)},
		{"one keeps everything", 1, sdktrace.AlwaysSample()},
		{"above one keeps everything", 1.7, sdktrace.AlwaysSample()},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := sampler(tc.rate)
			if got.Description() != tc.want.Description() {
				t.Errorf("sampler(%v) = %s, want %s", tc.rate, got.Description(), tc.want.Description())
			}
		})
	}
}

func TestNewResourceCarriesServiceIdentity(t *testing.T) {
	res, err := newResource("photoflow-lifecycle", "0.4.1", "staging")
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range res.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if got := attrs["service.name"].AsString(); got != "photoflow-lifecycle" {
		t.Errorf("service.name = %q, want %q", got, "photoflow-lifecycle")
	}
	if got := attrs["service.version"].AsString(); got != "0.4.1" {
		t.Errorf("service.version = %q, want %q", got, "0.4.1")
	}
	if got := attrs["deployment.environment"].AsString(); got != "staging" {
		t.Errorf("deployment.environment = %q, want %q", got, "staging")
	}
}

func TestSpanHelpers(t *testing.T) {
	exporter := installTestTracer(t)

	ctx, span := StartSpan(context.Background(), SpanScan)
	SetSpanAttribute(ctx, AttrProvider, "s3")
	SetSpanAttribute(ctx, "files.evaluated", 120)
	SetSpanAttribute(ctx, "bytes.copied", int64(1<<20))
	SetSpanAttribute(ctx, "sample.rate", 0.25)
	SetSpanAttribute(ctx, "dry_run", true)
	SetSpanAttribute(ctx, "timeout", 90*time.Second)
	SetSpanError(ctx, errors.New("bucket unreachable"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	got := spans[0]

	if got.Name != "lifecycle.scan" {
		t.Errorf("span name = %q, want %q", got.Name, "lifecycle.scan")
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range got.Attributes {
		attrs[kv.Key] = kv.Value
	}
	if v := attrs["storage.provider"].AsString(); v != "s3" {
		t.Errorf("storage.provider = %q, want %q", v, "s3")
	}
	if v := attrs["files.evaluated"].AsInt64(); v != 120 {
		t.Errorf("files.evaluated = %d, want 120", v)
	}
	if v := attrs["bytes.copied"].AsInt64(); v != 1<<20 {
		t.Errorf("bytes.copied = %d, want %d", v, 1<<20)
	}
	if v := attrs["sample.rate"].AsFloat64(); v != 0.25 {
		t.Errorf("sample.rate = %v, want 0.25", v)
	}
	if v := attrs["dry_run"].AsBool(); !v {
		t.Error("dry_run = false, want true")
	}
	// Unknown types fall back to their string form.
	if v := attrs["timeout"].AsString(); v != "1m30s" {
		t.Errorf("timeout = %q, want %q", v, "1m30s")
	}

	if got.Status.Code != codes.Error {
		t.Errorf("status code = %v, want %v", got.Status.Code, codes.Error)
	}
	if got.Status.Description != "bucket unreachable" {
		t.Errorf("status description = %q, want %q", got.Status.Description, "bucket unreachable")
	}
	var recorded bool
	for _, ev := range got.Events {
		if ev.Name == "exception" {
			recorded = true
		}
	}
	if !recorded {
		t.Error("expected an exception event on the span")
	}
}

func TestSetSpanErrorNilIsNoOp(t *testing.T) {
	exporter := installTestTracer(t)

	ctx, span := StartSpan(context.Background(), SpanMigrate)
	SetSpanError(ctx, nil)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Unset {
		t.Errorf("status code = %v, want %v", spans[0].Status.Code, codes.Unset)
	}
	if len(spans[0].Events) != 0 {
		t.Errorf("span has %d events, want 0", len(spans[0].Events))
	}
}

func TestSpanHelpersOutsideRecordingSpan(t *testing.T) {
	// Without a recording span both helpers return quietly.
	ctx := context.Background()
	SetSpanAttribute(ctx, "provider", "s3")
	SetSpanError(ctx, errors.New("unreachable"))
}

func TestScanMetricsRecordRun(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { mp.Shutdown(context.Background()) })

	m, err := NewScanMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewScanMetrics: %v", err)
	}

	ctx := context.Background()
	m.RecordRun(ctx, "s3", true, 120, 10, 5, 2, 1)
	m.RecordRun(ctx, "memory", false, 30, 0, 1, 0, 0)

	want := map[string]int64{
		"lifecycle.scan.runs":       2,
		"lifecycle.files.evaluated": 150,
		"lifecycle.files.archived":  10,
		"lifecycle.files.deleted":   6,
		"lifecycle.files.blocked":   2,
		"lifecycle.files.failed":    1,
	}
	got := counterTotals(t, reader)
	for name, total := range want {
		if got[name] != total {
			t.Errorf("%s = %d, want %d", name, got[name], total)
		}
	}
}

func TestMigrateMetricsRecordRun(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { mp.Shutdown(context.Background()) })

	m, err := NewMigrateMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMigrateMetrics: %v", err)
	}
	m.RecordRun(context.Background(), "s3", "local", 42, 3, 1<<20)

	want := map[string]int64{
		"migrate.runs":           1,
		"migrate.objects.copied": 42,
		"migrate.objects.failed": 3,
		"migrate.bytes.copied":   1 << 20,
	}
	got := counterTotals(t, reader)
	for name, total := range want {
		if got[name] != total {
			t.Errorf("%s = %d, want %d", name, got[name], total)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	wantAttrs := attribute.NewSet(
		attribute.String("source", "s3"),
		attribute.String("dest", "local"),
	)
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name != "migrate.runs" {
				continue
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("migrate.runs data type = %T, want Sum[int64]", metric.Data)
			}
			for _, dp := range sum.DataPoints {
				if !dp.Attributes.Equals(&wantAttrs) {
					t.Errorf("migrate.runs attributes = %v, want %v", dp.Attributes.Encoded(attribute.DefaultEncoder()), wantAttrs.Encoded(attribute.DefaultEncoder()))
				}
			}
		}
	}
}

// counterTotals sums every int64 counter collected by the reader, keyed
// by metric name and summed across attribute sets.
func counterTotals(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	totals := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s data type = %T, want Sum[int64]", metric.Name, metric.Data)
			}
			for _, dp := range sum.DataPoints {
				totals[metric.Name] += dp.Value
			}
		}
	}
	return totals
}

func TestInitTracerOffline(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	tp, err := InitTracer(context.Background(), &TracerConfig{
		ServiceName:    "photoflow-lifecycle",
		ServiceVersion: "0.4.1",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		SampleRate:     0.5,
	})
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if otel.GetTracerProvider() != tp {
		t.Error("expected the returned provider to be installed globally")
	}

	// No spans were recorded, so shutdown has nothing to export.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	tp.Shutdown(ctx)
}

func TestInitMeterOffline(t *testing.T) {
	prevMP := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prevMP) })

	mp, err := InitMeter(context.Background(), &MeterConfig{
		ServiceName:    "photoflow-lifecycle",
		ServiceVersion: "0.4.1",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       time.Minute,
	})
	if err != nil {
		t.Fatalf("InitMeter: %v", err)
	}
	if otel.GetMeterProvider() != mp {
		t.Error("expected the returned provider to be installed globally")
	}

	// The final flush targets a collector that is not there; the short
	// deadline keeps the exporter from retrying.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	mp.Shutdown(ctx)
}
