package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

// MetricsConfig holds metrics export configuration.
type MetricsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ExportInterval    time.Duration
	ServiceName       string
	Insecure          bool
}

// MeterProvider wraps the SDK meter provider with lifecycle management.
type MeterProvider struct {
	provider *sdkmetric.MeterProvider
	logger   *zap.Logger
	config   MetricsConfig
}

// NewMeterProvider configures metrics export and installs the global
// provider. Disabled config leaves the no-op global in place.
func NewMeterProvider(ctx context.Context, cfg MetricsConfig, logger *zap.Logger) (*MeterProvider, error) {
	mp := &MeterProvider{logger: logger, config: cfg}

	if !cfg.Enabled {
		logger.Info("metrics disabled")
		return mp, nil
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	exporterOpts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint),
	}
	if cfg.Insecure {
		exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	mp.provider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp.provider)

	logger.Info("metrics initialized",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Duration("export_interval", interval),
	)
	return mp, nil
}

// Shutdown flushes pending metrics.
func (mp *MeterProvider) Shutdown(ctx context.Context) error {
	if mp.provider == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := mp.provider.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown meter provider: %w", err)
	}
	return nil
}

// SyncMetrics holds the service's sync instruments. Instruments are
// created from the global meter so they stay no-ops when metrics are
// disabled.
type SyncMetrics struct {
	runsTotal      metric.Int64Counter
	runsRejected   metric.Int64Counter
	sourceDuration metric.Float64Histogram
	recordsApplied metric.Int64Counter
	rowErrorsTotal metric.Int64Counter
	stagingUploads metric.Int64Counter
}

// NewSyncMetrics creates the sync instrument set.
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter("invsync.sync")

	runsTotal, err := meter.Int64Counter("sync_runs_total",
		metric.WithDescription("Completed sync runs by trigger and outcome"))
	if err != nil {
		return nil, err
	}
	runsRejected, err := meter.Int64Counter("sync_runs_rejected_total",
		metric.WithDescription("Triggers rejected by the single-flight lock"))
	if err != nil {
		return nil, err
	}
	sourceDuration, err := meter.Float64Histogram("sync_source_duration_seconds",
		metric.WithDescription("Per-source sync duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	recordsApplied, err := meter.Int64Counter("sync_records_applied_total",
		metric.WithDescription("Records created or updated, by source"))
	if err != nil {
		return nil, err
	}
	rowErrorsTotal, err := meter.Int64Counter("sync_row_errors_total",
		metric.WithDescription("Rows rejected during reconciliation, by source"))
	if err != nil {
		return nil, err
	}
	stagingUploads, err := meter.Int64Counter("staging_uploads_total",
		metric.WithDescription("CSV files staged for ingestion, by source"))
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		runsTotal:      runsTotal,
		runsRejected:   runsRejected,
		sourceDuration: sourceDuration,
		recordsApplied: recordsApplied,
		rowErrorsTotal: rowErrorsTotal,
		stagingUploads: stagingUploads,
	}, nil
}

// RecordRun counts a finished run.
func (m *SyncMetrics) RecordRun(ctx context.Context, trigger string, success bool) {
	outcome := "failed"
	if success {
		outcome = "succeeded"
	}
	m.runsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("outcome", outcome),
	))
}

// RecordRejection counts a trigger that lost the single-flight race.
func (m *SyncMetrics) RecordRejection(ctx context.Context, trigger string) {
	m.runsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

// RecordSource records one source attempt's outcome.
func (m *SyncMetrics) RecordSource(ctx context.Context, source string, duration time.Duration, applied, rowErrors int) {
	attrs := metric.WithAttributes(attribute.String("source", source))
	m.sourceDuration.Record(ctx, duration.Seconds(), attrs)
	if applied > 0 {
		m.recordsApplied.Add(ctx, int64(applied), attrs)
	}
	if rowErrors > 0 {
		m.rowErrorsTotal.Add(ctx, int64(rowErrors), attrs)
	}
}

// RecordStagingUpload counts a staged CSV.
func (m *SyncMetrics) RecordStagingUpload(ctx context.Context, source string) {
	m.stagingUploads.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}
