package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SchemaReloadMetrics tracks reloads of the type definitions.
type SchemaReloadMetrics struct {
	reloadCounter   metric.Int64Counter
	durationHist    metric.Float64Histogram
	lastSuccessUnix atomic.Int64
	nodeTypes       atomic.Int64
}

// InitSchemaReloadMetrics initializes schema reload metrics.
func InitSchemaReloadMetrics() (*SchemaReloadMetrics, error) {
	meter := otel.Meter(meterName)

	reloadCounter, err := meter.Int64Counter(
		"schema.reload.total",
		metric.WithDescription("Total number of type definition reload attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema reload counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"schema.reload.duration",
		metric.WithDescription("Duration of type definition reloads in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema reload duration histogram: %w", err)
	}

	lastSuccessGauge, err := meter.Int64ObservableGauge(
		"schema.reload.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful reload"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema reload last success gauge: %w", err)
	}

	nodeTypesGauge, err := meter.Int64ObservableGauge(
		"schema.node_types",
		metric.WithDescription("Number of node types in the active schema"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create node types gauge: %w", err)
	}

	metrics := &SchemaReloadMetrics{
		reloadCounter: reloadCounter,
		durationHist:  durationHist,
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			if value := metrics.lastSuccessUnix.Load(); value > 0 {
				observer.ObserveInt64(lastSuccessGauge, value)
				observer.ObserveInt64(nodeTypesGauge, metrics.nodeTypes.Load())
			}
			return nil
		},
		lastSuccessGauge,
		nodeTypesGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register schema reload gauge callback: %w", err)
	}
	return metrics, nil
}

// RecordReload records a reload attempt. nodeTypes is ignored on failure.
func (m *SchemaReloadMetrics) RecordReload(ctx context.Context, duration time.Duration, success bool, trigger string, nodeTypes int) {
	attrs := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.Bool("success", success),
	)
	m.reloadCounter.Add(ctx, 1, attrs)
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), attrs)
	if !success {
		return
	}
	m.lastSuccessUnix.Store(time.Now().Unix())
	m.nodeTypes.Store(int64(nodeTypes))
}
