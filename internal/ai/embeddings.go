package ai

import (
	"context"
	"fmt"

	genai "github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel/attribute"
)

// TaskType tells the embedding model which side of retrieval a text is on.
type TaskType string

const (
	TaskRetrievalDocument TaskType = "RETRIEVAL_DOCUMENT"
	TaskRetrievalQuery    TaskType = "RETRIEVAL_QUERY"
)

func (t TaskType) genai() genai.TaskType {
	switch t {
	case TaskRetrievalDocument:
		return genai.TaskTypeRetrievalDocument
	case TaskRetrievalQuery:
		return genai.TaskTypeRetrievalQuery
	default:
		return genai.TaskTypeUnspecified
	}
}

// EmbedContents embeds texts in one batch request. Vectors come back in input
// order, cut to the configured dimensionality; they are not normalized.
func (gc *GeminiClient) EmbedContents(ctx context.Context, texts []string, task TaskType) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "gemini.embed_contents")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", gc.embeddingModel),
		attribute.String("gemini.task_type", string(task)),
		attribute.Int("gemini.batch_size", len(texts)),
	)

	if len(texts) == 0 {
		return nil, nil
	}

	result, err := gc.call(ctx, span, func() (interface{}, error) {
		em := gc.client.EmbeddingModel(gc.embeddingModel)
		em.TaskType = task.genai()

		batch := em.NewBatch()
		for _, text := range texts {
			batch.AddContent(genai.Text(text))
		}
		return em.BatchEmbedContents(ctx, batch)
	})
	if err != nil {
		return nil, fmt.Errorf("batch embed: %w", err)
	}

	resp := result.(*genai.BatchEmbedContentsResponse)
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("batch embed returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("batch embed: missing embedding at index %d", i)
		}
		v, err := truncateDimensions(e.Values, gc.dimensions)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// truncateDimensions keeps the leading dims components. gemini-embedding-001
// is trained so that prefixes remain usable embeddings once re-normalized.
func truncateDimensions(values []float32, dims int) ([]float32, error) {
	if dims <= 0 || len(values) == dims {
		return values, nil
	}
	if len(values) < dims {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(values), dims)
	}
	out := make([]float32, dims)
	copy(out, values[:dims])
	return out, nil
}
