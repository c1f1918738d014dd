package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "cypher-graphql"

// GraphQLMetrics holds metrics for GraphQL HTTP requests
type GraphQLMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
}

// InitGraphQLMetrics initializes GraphQL request metrics
func InitGraphQLMetrics() (*GraphQLMetrics, error) {
	meter := otel.Meter(meterName)

	requestDuration, err := meter.Float64Histogram(
		"graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"graphql.requests.total",
		metric.WithDescription("Total number of GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"graphql.errors.total",
		metric.WithDescription("Total number of GraphQL requests that returned errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"graphql.requests.active",
		metric.WithDescription("Number of active GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	return &GraphQLMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		activeRequests:  activeRequests,
	}, nil
}

// RecordRequest records a GraphQL request with its duration and outcome
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	attrs := []attribute.KeyValue{
		attribute.String("operation_type", operationType),
		attribute.Bool("has_errors", hasErrors),
	}
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation_type", operationType),
		))
	}
}

// IncrementActiveRequests increments the active requests counter
func (m *GraphQLMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *GraphQLMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

// TranslateMetrics holds metrics for create translation and execution.
type TranslateMetrics struct {
	translations      metric.Int64Counter
	items             metric.Int64Histogram
	guards            metric.Int64Counter
	translateDuration metric.Float64Histogram
	executeDuration   metric.Float64Histogram
}

// InitTranslateMetrics initializes translation metrics.
func InitTranslateMetrics() (*TranslateMetrics, error) {
	meter := otel.Meter(meterName)

	translations, err := meter.Int64Counter(
		"cypher.translations.total",
		metric.WithDescription("Total number of create mutations translated, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create translations counter: %w", err)
	}

	items, err := meter.Int64Histogram(
		"cypher.create.items",
		metric.WithDescription("Number of input items per create mutation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create items histogram: %w", err)
	}

	guards, err := meter.Int64Counter(
		"cypher.guards.total",
		metric.WithDescription("Number of statements carrying a read-authorization guard"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create guards counter: %w", err)
	}

	translateDuration, err := meter.Float64Histogram(
		"cypher.translate.duration",
		metric.WithDescription("Time spent translating create mutations in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create translate duration histogram: %w", err)
	}

	executeDuration, err := meter.Float64Histogram(
		"cypher.execute.duration",
		metric.WithDescription("Time spent executing translated statements in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create execute duration histogram: %w", err)
	}

	return &TranslateMetrics{
		translations:      translations,
		items:             items,
		guards:            guards,
		translateDuration: translateDuration,
		executeDuration:   executeDuration,
	}, nil
}

// RecordTranslation records one translation attempt. outcome is "success"
// or an error kind such as "validation" or "forbidden".
func (m *TranslateMetrics) RecordTranslation(ctx context.Context, mutation, outcome string, items int, guarded bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("mutation", mutation),
		attribute.String("outcome", outcome),
	)
	m.translations.Add(ctx, 1, attrs)
	m.translateDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if outcome != "success" {
		return
	}
	m.items.Record(ctx, int64(items), metric.WithAttributes(attribute.String("mutation", mutation)))
	if guarded {
		m.guards.Add(ctx, 1, metric.WithAttributes(attribute.String("mutation", mutation)))
	}
}

// RecordExecution records the execution of a translated statement.
func (m *TranslateMetrics) RecordExecution(ctx context.Context, mutation, outcome string, duration time.Duration) {
	m.executeDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("mutation", mutation),
		attribute.String("outcome", outcome),
	))
}

// Metrics bundles the application's custom instruments.
type Metrics struct {
	GraphQL   *GraphQLMetrics
	Translate *TranslateMetrics
	Reload    *SchemaReloadMetrics
}

// InitMetrics initializes all custom metrics
func InitMetrics(logger *slog.Logger) (*Metrics, error) {
	graphql, err := InitGraphQLMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}
	translate, err := InitTranslateMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize translate metrics: %w", err)
	}
	reload, err := InitSchemaReloadMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize schema reload metrics: %w", err)
	}

	logger.Info("custom metrics initialized")
	return &Metrics{GraphQL: graphql, Translate: translate, Reload: reload}, nil
}
