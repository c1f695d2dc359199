package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/sean-she/photoflow-storage/logger"
)

// MeterConfig carries the settings for the OTLP metric exporter installed
// by InitMeter.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	// Environment tags every exported metric (development, staging, production).
	Environment string
	// Endpoint is the OTLP/HTTP collector address as host:port.
	Endpoint string
	// Insecure sends metrics over plain HTTP, for local collectors only.
	Insecure bool
	// Interval between exports. Zero keeps the SDK default.
	Interval time.Duration
}

// InitMeter installs a global meter provider that pushes metrics to an
// OTLP/HTTP collector on a fixed interval. The caller owns the returned
// provider and must call Shutdown on exit to flush the final reading.
func InitMeter(ctx context.Context, cfg *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("observability: metric exporter: %w", err)
	}

	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Debug("metrics enabled", logger.Fields(
		"endpoint", cfg.Endpoint,
		"interval", cfg.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the installed provider. Before
// InitMeter runs this is the delegating global meter, so instruments may
// be constructed at any point and go live once a provider is installed.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// ScanMetrics counts lifecycle scan outcomes by provider.
type ScanMetrics struct {
	runs      metric.Int64Counter
	evaluated metric.Int64Counter
	archived  metric.Int64Counter
	deleted   metric.Int64Counter
	blocked   metric.Int64Counter
	failed    metric.Int64Counter
}

// NewScanMetrics creates the lifecycle scan instruments on the given meter.
func NewScanMetrics(meter metric.Meter) (*ScanMetrics, error) {
	m := &ScanMetrics{}
	var err error
	if m.runs, err = meter.Int64Counter("lifecycle.scan.runs",
		metric.WithDescription("Completed lifecycle scan runs")); err != nil {
		return nil, fmt.Errorf("creating lifecycle.scan.runs counter: %w", err)
	}
	if m.evaluated, err = meter.Int64Counter("lifecycle.files.evaluated",
		metric.WithDescription("Files evaluated against the lifecycle policy")); err != nil {
		return nil, fmt.Errorf("creating lifecycle.files.evaluated counter: %w", err)
	}
	if m.archived, err = meter.Int64Counter("lifecycle.files.archived",
		metric.WithDescription("Files archived by lifecycle rules")); err != nil {
		return nil, fmt.Errorf("creating lifecycle.files.archived counter: %w", err)
	}
	if m.deleted, err = meter.Int64Counter("lifecycle.files.deleted",
		metric.WithDescription("Files deleted by lifecycle rules")); err != nil {
		return nil, fmt.Errorf("creating lifecycle.files.deleted counter: %w", err)
	}
	if m.blocked, err = meter.Int64Counter("lifecycle.files.blocked",
		metric.WithDescription("Destructive actions blocked by safeguards")); err != nil {
		return nil, fmt.Errorf("creating lifecycle.files.blocked counter: %w", err)
	}
	if m.failed, err = meter.Int64Counter("lifecycle.files.failed",
		metric.WithDescription("Per-file failures during lifecycle scans")); err != nil {
		return nil, fmt.Errorf("creating lifecycle.files.failed counter: %w", err)
	}
	return m, nil
}

// RecordRun records the aggregate outcome of one scan run.
func (m *ScanMetrics) RecordRun(ctx context.Context, provider string, dryRun bool, evaluated, archived, deleted, blocked, failed int) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("dry_run", dryRun),
	)
	m.runs.Add(ctx, 1, attrs)
	m.evaluated.Add(ctx, int64(evaluated), attrs)
	m.archived.Add(ctx, int64(archived), attrs)
	m.deleted.Add(ctx, int64(deleted), attrs)
	m.blocked.Add(ctx, int64(blocked), attrs)
	m.failed.Add(ctx, int64(failed), attrs)
}

// MigrateMetrics counts migration outcomes by provider pair.
type MigrateMetrics struct {
	runs   metric.Int64Counter
	copied metric.Int64Counter
	failed metric.Int64Counter
	bytes  metric.Int64Counter
}

// NewMigrateMetrics creates the migration instruments on the given meter.
func NewMigrateMetrics(meter metric.Meter) (*MigrateMetrics, error) {
	m := &MigrateMetrics{}
	var err error
	if m.runs, err = meter.Int64Counter("migrate.runs",
		metric.WithDescription("Completed migration runs")); err != nil {
		return nil, fmt.Errorf("creating migrate.runs counter: %w", err)
	}
	if m.copied, err = meter.Int64Counter("migrate.objects.copied",
		metric.WithDescription("Objects copied to the destination provider")); err != nil {
		return nil, fmt.Errorf("creating migrate.objects.copied counter: %w", err)
	}
	if m.failed, err = meter.Int64Counter("migrate.objects.failed",
		metric.WithDescription("Objects that failed to migrate")); err != nil {
		return nil, fmt.Errorf("creating migrate.objects.failed counter: %w", err)
	}
	if m.bytes, err = meter.Int64Counter("migrate.bytes.copied",
		metric.WithDescription("Bytes copied to the destination provider"),
		metric.WithUnit("By")); err != nil {
		return nil, fmt.Errorf("creating migrate.bytes.copied counter: %w", err)
	}
	return m, nil
}

// RecordRun records the aggregate outcome of one migration run.
func (m *MigrateMetrics) RecordRun(ctx context.Context, source, dest string, copied, failed int, bytes int64) {
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("dest", dest),
	)
	m.runs.Add(ctx, 1, attrs)
	m.copied.Add(ctx, int64(copied), attrs)
	m.failed.Add(ctx, int64(failed), attrs)
	m.bytes.Add(ctx, bytes, attrs)
}
