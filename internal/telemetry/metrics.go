package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	IngestDuration      metric.Float64Histogram
	DocumentsIngested   metric.Int64Counter
	ChunksProduced      metric.Int64Counter
	ExactTokenCounts    metric.Int64Counter
	EmbeddingRetries    metric.Int64Counter
	Queries             metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
	StoreOperations     metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("pdf-rag-platform")

	var (
		m   Metrics
		err error
	)

	if m.RequestCounter, err = meter.Int64Counter("http.requests.total",
		metric.WithDescription("Total HTTP requests")); err != nil {
		return nil, err
	}
	if m.RequestDuration, err = meter.Float64Histogram("http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.IngestDuration, err = meter.Float64Histogram("rag.ingest.duration",
		metric.WithDescription("Document ingestion duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.DocumentsIngested, err = meter.Int64Counter("rag.documents.ingested",
		metric.WithDescription("Documents processed, by outcome")); err != nil {
		return nil, err
	}
	if m.ChunksProduced, err = meter.Int64Counter("rag.chunks.produced",
		metric.WithDescription("Chunks produced by the token-budget chunker")); err != nil {
		return nil, err
	}
	if m.ExactTokenCounts, err = meter.Int64Counter("rag.tokenizer.exact_calls",
		metric.WithDescription("Calls to the exact token counter")); err != nil {
		return nil, err
	}
	if m.EmbeddingRetries, err = meter.Int64Counter("rag.embedding.retries",
		metric.WithDescription("Embedding batch attempts that failed and were retried")); err != nil {
		return nil, err
	}
	if m.Queries, err = meter.Int64Counter("rag.queries.total",
		metric.WithDescription("Answer requests, by outcome")); err != nil {
		return nil, err
	}
	if m.CircuitBreakerState, err = meter.Int64Counter("circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes")); err != nil {
		return nil, err
	}
	if m.StoreOperations, err = meter.Int64Counter("vectorstore.operations.total",
		metric.WithDescription("Vector store operations")); err != nil {
		return nil, err
	}

	return &m, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	)
	m.RequestCounter.Add(context.Background(), 1, attrs)
	m.RequestDuration.Record(context.Background(), duration, attrs)
}

// RecordIngestion records one ingestion attempt and its duration.
func (m *Metrics) RecordIngestion(ctx context.Context, duration float64, status string, chunks int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("ingest.status", status))
	m.IngestDuration.Record(ctx, duration, attrs)
	m.DocumentsIngested.Add(ctx, 1, attrs)
	if chunks > 0 {
		m.ChunksProduced.Add(ctx, int64(chunks))
	}
}

func (m *Metrics) RecordExactTokenCount(ctx context.Context) {
	if m == nil {
		return
	}
	m.ExactTokenCounts.Add(ctx, 1)
}

func (m *Metrics) RecordEmbeddingRetry(ctx context.Context, task string) {
	if m == nil {
		return
	}
	m.EmbeddingRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("embedding.task", task)))
}

// RecordQuery records an answer request; outcome is "answered", "not_found" or "error".
func (m *Metrics) RecordQuery(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Queries.Add(ctx, 1, metric.WithAttributes(attribute.String("query.outcome", outcome)))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("state", state),
	))
}

// RecordStoreOperation records vector store operation metrics
func (m *Metrics) RecordStoreOperation(ctx context.Context, operation, backend string, success bool) {
	if m == nil {
		return
	}
	m.StoreOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store.operation", operation),
		attribute.String("store.backend", backend),
		attribute.Bool("store.success", success),
	))
}
