package ai

import (
	"context"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel/attribute"
)

// FallbackAnswer is what the model is told to say when the context does not
// contain the answer.
const FallbackAnswer = "I cannot find the answer in the document."

const groundedPromptTemplate = `You are a factual RAG question-answering assistant.
Answer the question using ONLY the information in the CONTEXT below.
Do not use outside knowledge and do not guess.
If the context does not contain the answer, respond exactly with: "%s"

CONTEXT:
%s

QUESTION:
%s

ANSWER:`

// BuildGroundedPrompt renders the instruction, context and question for the generator.
func BuildGroundedPrompt(question, contextText string) string {
	return fmt.Sprintf(groundedPromptTemplate, FallbackAnswer, contextText, question)
}

// GenerateAnswer returns the model's answer verbatim (trimmed).
func (gc *GeminiClient) GenerateAnswer(ctx context.Context, question, contextText string) (string, error) {
	ctx, span := tracer.Start(ctx, "gemini.generate_answer")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", gc.generationModel),
		attribute.Int("gemini.context_chars", len(contextText)),
	)

	prompt := BuildGroundedPrompt(question, contextText)

	result, err := gc.call(ctx, span, func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.generationModel)
		model.SetTemperature(0)
		return model.GenerateContent(ctx, genai.Text(prompt))
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	resp := result.(*genai.GenerateContentResponse)
	if resp.UsageMetadata != nil {
		span.SetAttributes(attribute.Int("gemini.actual_tokens", int(resp.UsageMetadata.TotalTokenCount)))
	}

	answer := strings.TrimSpace(responseText(resp))
	if answer == "" {
		return "", fmt.Errorf("generate answer: empty response")
	}
	return answer, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		break
	}
	return b.String()
}
