package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"pdf-rag-platform/internal/ai"
	"pdf-rag-platform/internal/logger"
	"pdf-rag-platform/internal/telemetry"
)

const (
	DefaultEmbedBatchSize  = 96
	DefaultEmbedDimensions = 1536
	defaultEmbedAttempts   = 3
	defaultEmbedRetryDelay = time.Second
)

// EmbeddingProvider turns texts into raw vectors, one per text, in order.
type EmbeddingProvider interface {
	EmbedContents(ctx context.Context, texts []string, task ai.TaskType) ([][]float32, error)
}

// VectorCache stores normalized query vectors. Misses and failures are
// reported the same way: ok == false.
type VectorCache interface {
	Get(ctx context.Context, text string) ([]float32, bool)
	Set(ctx context.Context, text string, vector []float32)
}

type EmbedderConfig struct {
	BatchSize   int
	Dimensions  int
	MaxAttempts int
	RetryDelay  time.Duration
}

// Embedder batches texts through an EmbeddingProvider with retries and
// returns L2-normalized vectors of a fixed dimensionality.
type Embedder struct {
	provider EmbeddingProvider
	cfg      EmbedderConfig
	cache    VectorCache
	metrics  *telemetry.Metrics
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewEmbedder(provider EmbeddingProvider, cfg EmbedderConfig, metrics *telemetry.Metrics) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbedBatchSize
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultEmbedDimensions
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultEmbedAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultEmbedRetryDelay
	}
	return &Embedder{
		provider: provider,
		cfg:      cfg,
		metrics:  metrics,
		sleep:    sleepContext,
	}
}

// WithCache enables the query vector cache.
func (e *Embedder) WithCache(cache VectorCache) *Embedder {
	e.cache = cache
	return e
}

// EmbedDocuments embeds texts as retrieval documents. The output has the same
// length and order as texts.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "rag.embed")
	defer span.End()
	span.SetAttributes(attribute.Int("rag.texts", len(texts)))

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end], ai.TaskRetrievalDocument)
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %w", ErrEmbedding, start, end, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// EmbedQuery embeds a single question for retrieval. Surrounding whitespace
// is ignored.
func (e *Embedder) EmbedQuery(ctx context.Context, question string) ([]float32, error) {
	text := strings.TrimSpace(question)
	if text == "" {
		return nil, fmt.Errorf("%w: empty query", ErrEmbedding)
	}

	if e.cache != nil {
		if v, ok := e.cache.Get(ctx, text); ok && len(v) == e.cfg.Dimensions {
			return v, nil
		}
	}

	vectors, err := e.embedBatch(ctx, []string{text}, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", ErrEmbedding, err)
	}

	if e.cache != nil {
		e.cache.Set(ctx, text, vectors[0])
	}
	return vectors[0], nil
}

// embedBatch calls the provider up to MaxAttempts times, waiting
// RetryDelay*attempt between tries.
func (e *Embedder) embedBatch(ctx context.Context, texts []string, task ai.TaskType) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		raw, err := e.provider.EmbedContents(ctx, texts, task)
		if err == nil {
			err = e.checkShape(raw, len(texts))
		}
		if err == nil {
			return normalizeAll(raw)
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// No wait after the final attempt, so three attempts sleep 1s then 2s.
		if attempt == e.cfg.MaxAttempts {
			break
		}

		e.metrics.RecordEmbeddingRetry(ctx, string(task))
		logger.Warn("Embedding batch failed, retrying",
			"attempt", attempt, "batch_size", len(texts), "task", string(task), "error", err)
		if err := e.sleep(ctx, time.Duration(attempt)*e.cfg.RetryDelay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", e.cfg.MaxAttempts, lastErr)
}

func (e *Embedder) checkShape(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) != e.cfg.Dimensions {
			return fmt.Errorf("vector %d has %d dimensions, want %d", i, len(v), e.cfg.Dimensions)
		}
	}
	return nil
}

func normalizeAll(vectors [][]float32) ([][]float32, error) {
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}

// Normalize returns v scaled to unit L2 norm. Zero vectors are rejected.
func Normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, fmt.Errorf("cannot normalize vector with norm %v", norm)
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
