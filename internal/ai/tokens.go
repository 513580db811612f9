package ai

import (
	"context"
	"fmt"

	genai "github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel/attribute"
)

// CountTokens asks the model's tokenizer for the exact token count of text.
func (gc *GeminiClient) CountTokens(ctx context.Context, model, text string) (int, error) {
	ctx, span := tracer.Start(ctx, "gemini.count_tokens")
	defer span.End()

	if model == "" {
		model = gc.embeddingModel
	}
	span.SetAttributes(attribute.String("gemini.model", model))

	result, err := gc.call(ctx, span, func() (interface{}, error) {
		return gc.client.GenerativeModel(model).CountTokens(ctx, genai.Text(text))
	})
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}

	total := int(result.(*genai.CountTokensResponse).TotalTokens)
	span.SetAttributes(attribute.Int("gemini.total_tokens", total))
	return total, nil
}
