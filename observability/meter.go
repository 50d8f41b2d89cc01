package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/consulagent/logger"
)

// InitMeter initializes the OpenTelemetry meter provider and installs it
// globally. The caller shuts it down on exit, which also flushes pending
// measurements.
func InitMeter(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Debug("meter initialized", logger.Fields(
		"endpoint", cfg.Endpoint,
		"interval", cfg.Interval.String(),
	))

	return mp, nil
}

// Metric names.
const (
	MetricWeightTableFallbacks = "consulagent.weight_table.fallbacks"
	MetricBackendRequests      = "consulagent.backend.requests"
	MetricBackendDuration      = "consulagent.backend.duration"
)

// Outcomes recorded on backend request metrics.
const (
	OutcomeOK          = "ok"
	OutcomeRejected    = "rejected"
	OutcomeUnavailable = "unavailable"
	OutcomeNotFound    = "not_found"
)

// Metrics holds the instruments consulagent records.
type Metrics struct {
	fallbacks       metric.Int64Counter
	backendRequests metric.Int64Counter
	backendDuration metric.Float64Histogram
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	fallbacks, err := meter.Int64Counter(MetricWeightTableFallbacks,
		metric.WithDescription("Weight table fetches that fell back to the built-in table"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricWeightTableFallbacks, err)
	}

	backendRequests, err := meter.Int64Counter(MetricBackendRequests,
		metric.WithDescription("Requests sent to the Consul agent by operation and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricBackendRequests, err)
	}

	backendDuration, err := meter.Float64Histogram(MetricBackendDuration,
		metric.WithDescription("Duration of Consul agent requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricBackendDuration, err)
	}

	return &Metrics{
		fallbacks:       fallbacks,
		backendRequests: backendRequests,
		backendDuration: backendDuration,
	}, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns instruments bound to the global meter provider.
// Instruments created before Setup forward to the provider it installs.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.Meter(defaultTracerName))
		if err != nil {
			logger.Warn("metrics unavailable", logger.ErrorFields("new_metrics", err))
			return
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordWeightTableFallback counts one fallback to the built-in weight table.
// Safe on a nil receiver.
func (m *Metrics) RecordWeightTableFallback(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordBackendRequest records one backend call. Safe on a nil receiver.
func (m *Metrics) RecordBackendRequest(ctx context.Context, op, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
	m.backendDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("op", op),
	))
}
