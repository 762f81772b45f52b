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

// AssistantMetrics holds custom metrics for the question pipeline.
// All record methods are safe on a nil receiver.
type AssistantMetrics struct {
	askDuration      metric.Float64Histogram
	askCounter       metric.Int64Counter
	activeAsks       metric.Int64UpDownCounter
	sqlDuration      metric.Float64Histogram
	sqlRows          metric.Int64Histogram
	repairAttempts   metric.Int64Counter
	distinctHits     metric.Int64Counter
	distinctMisses   metric.Int64Counter
	llmDuration      metric.Float64Histogram
	llmErrors        metric.Int64Counter
	cacheInvalidated metric.Int64Counter
}

// InitAssistantMetrics initializes pipeline metrics.
func InitAssistantMetrics() (*AssistantMetrics, error) {
	meter := otel.Meter("salesql")

	askDuration, err := meter.Float64Histogram(
		"salesql.ask.duration",
		metric.WithDescription("Duration of question handling in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ask duration histogram: %w", err)
	}

	askCounter, err := meter.Int64Counter(
		"salesql.ask.requests.total",
		metric.WithDescription("Total number of questions by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ask counter: %w", err)
	}

	activeAsks, err := meter.Int64UpDownCounter(
		"salesql.ask.active",
		metric.WithDescription("Number of questions being handled"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active asks counter: %w", err)
	}

	sqlDuration, err := meter.Float64Histogram(
		"salesql.sql.duration",
		metric.WithDescription("Duration of planned SQL execution in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sql duration histogram: %w", err)
	}

	sqlRows, err := meter.Int64Histogram(
		"salesql.sql.rows",
		metric.WithDescription("Number of rows returned by planned SQL"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sql rows histogram: %w", err)
	}

	repairAttempts, err := meter.Int64Counter(
		"salesql.repair.attempts.total",
		metric.WithDescription("Number of SQL repair attempts by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create repair attempts counter: %w", err)
	}

	distinctHits, err := meter.Int64Counter(
		"salesql.distinct_cache.hits",
		metric.WithDescription("Number of distinct-value cache hits"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create distinct cache hits counter: %w", err)
	}

	distinctMisses, err := meter.Int64Counter(
		"salesql.distinct_cache.misses",
		metric.WithDescription("Number of distinct-value cache misses"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create distinct cache misses counter: %w", err)
	}

	llmDuration, err := meter.Float64Histogram(
		"salesql.llm.duration",
		metric.WithDescription("Duration of LLM repair calls in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	llmErrors, err := meter.Int64Counter(
		"salesql.llm.errors.total",
		metric.WithDescription("Number of failed LLM repair calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	cacheInvalidated, err := meter.Int64Counter(
		"salesql.distinct_cache.invalidated",
		metric.WithDescription("Number of distinct-value cache entries removed by invalidation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache invalidation counter: %w", err)
	}

	return &AssistantMetrics{
		askDuration:      askDuration,
		askCounter:       askCounter,
		activeAsks:       activeAsks,
		sqlDuration:      sqlDuration,
		sqlRows:          sqlRows,
		repairAttempts:   repairAttempts,
		distinctHits:     distinctHits,
		distinctMisses:   distinctMisses,
		llmDuration:      llmDuration,
		llmErrors:        llmErrors,
		cacheInvalidated: cacheInvalidated,
	}, nil
}

// RecordAsk records a handled question with its duration and outcome.
func (m *AssistantMetrics) RecordAsk(ctx context.Context, duration time.Duration, outcome, route, intent string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("route", route),
		attribute.String("intent", intent),
	)
	m.askDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.askCounter.Add(ctx, 1, attrs)
}

// RecordSQL records one execution of planned or repaired SQL.
func (m *AssistantMetrics) RecordSQL(ctx context.Context, duration time.Duration, rows int, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.sqlDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if success {
		m.sqlRows.Record(ctx, int64(rows))
	}
}

// RecordRepair records a repair attempt of the given kind (narrow or llm).
func (m *AssistantMetrics) RecordRepair(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.repairAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *AssistantMetrics) RecordDistinctCacheHit(ctx context.Context, table string) {
	if m == nil {
		return
	}
	m.distinctHits.Add(ctx, 1, metric.WithAttributes(attribute.String("table", table)))
}

func (m *AssistantMetrics) RecordDistinctCacheMiss(ctx context.Context, table string) {
	if m == nil {
		return
	}
	m.distinctMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("table", table)))
}

func (m *AssistantMetrics) RecordCacheInvalidated(ctx context.Context, removed int) {
	if m == nil || removed <= 0 {
		return
	}
	m.cacheInvalidated.Add(ctx, int64(removed))
}

// RecordLLMCall records an LLM call duration and whether it failed.
func (m *AssistantMetrics) RecordLLMCall(ctx context.Context, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.llmDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attribute.Bool("success", err == nil)))
	if err != nil {
		m.llmErrors.Add(ctx, 1)
	}
}

// IncrementActiveAsks increments the active questions counter
func (m *AssistantMetrics) IncrementActiveAsks(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeAsks.Add(ctx, 1)
}

// DecrementActiveAsks decrements the active questions counter
func (m *AssistantMetrics) DecrementActiveAsks(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeAsks.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics and returns the AssistantMetrics instance
func InitMetrics(logger *slog.Logger) (*AssistantMetrics, error) {
	metrics, err := InitAssistantMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize assistant metrics: %w", err)
	}

	logger.Info("custom assistant metrics initialized")
	return metrics, nil
}

type assistantMetricsContextKey struct{}

// ContextWithAssistantMetrics stores pipeline metrics in the provided context.
func ContextWithAssistantMetrics(ctx context.Context, metrics *AssistantMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, assistantMetricsContextKey{}, metrics)
}

// AssistantMetricsFromContext retrieves pipeline metrics from the context.
func AssistantMetricsFromContext(ctx context.Context) *AssistantMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(assistantMetricsContextKey{}).(*AssistantMetrics)
	return metrics
}
