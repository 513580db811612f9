package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"pdf-rag-platform/internal/logger"
	"pdf-rag-platform/internal/telemetry"
	"pdf-rag-platform/models"
)

const (
	// Above this share of the budget the character estimate is not trusted.
	exactCountRatio = 0.7

	defaultResplitSize    = 600
	defaultResplitOverlap = 120

	// Hard stop for re-splitting; pieces still over budget here are emitted as-is.
	maxResplitDepth = 16
)

// TokenCounter returns the exact token count of text under a model's tokenizer.
type TokenCounter interface {
	CountTokens(ctx context.Context, model, text string) (int, error)
}

type ChunkerConfig struct {
	MaxTokens      int
	ChunkSize      int
	ChunkOverlap   int
	ResplitSize    int
	ResplitOverlap int
	TokenizerModel string
}

// TokenBudgetChunker splits pages into chunks whose token count stays within
// MaxTokens, calling the exact tokenizer only for pieces near the limit.
type TokenBudgetChunker struct {
	cfg        ChunkerConfig
	splitter   *RecursiveSplitter
	resplitter *RecursiveSplitter
	counter    TokenCounter
	metrics    *telemetry.Metrics
	newID      func() string
}

func NewTokenBudgetChunker(cfg ChunkerConfig, counter TokenCounter, metrics *telemetry.Metrics) (*TokenBudgetChunker, error) {
	if cfg.MaxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", cfg.MaxTokens)
	}
	if counter == nil {
		return nil, fmt.Errorf("token counter is required")
	}
	if cfg.ResplitSize == 0 {
		cfg.ResplitSize = defaultResplitSize
	}
	if cfg.ResplitOverlap == 0 {
		cfg.ResplitOverlap = defaultResplitOverlap
	}

	splitter, err := NewRecursiveSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	resplitter, err := NewRecursiveSplitter(cfg.ResplitSize, cfg.ResplitOverlap)
	if err != nil {
		return nil, fmt.Errorf("resplit: %w", err)
	}

	return &TokenBudgetChunker{
		cfg:        cfg,
		splitter:   splitter,
		resplitter: resplitter,
		counter:    counter,
		metrics:    metrics,
		newID:      uuid.NewString,
	}, nil
}

type sizedPiece struct {
	text   string
	tokens int
}

// ChunkPages chunks every page in order. Any tokenizer failure aborts the
// whole document with ErrChunking.
func (c *TokenBudgetChunker) ChunkPages(ctx context.Context, pages []models.Page) ([]models.Chunk, error) {
	ctx, span := tracer.Start(ctx, "rag.chunk")
	defer span.End()

	var chunks []models.Chunk
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrChunking, err)
		}
		pageChunks, err := c.ChunkPage(ctx, page)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, pageChunks...)
	}

	span.SetAttributes(
		attribute.Int("rag.pages", len(pages)),
		attribute.Int("rag.chunks", len(chunks)),
	)
	return chunks, nil
}

// ChunkPage chunks the text of a single page.
func (c *TokenBudgetChunker) ChunkPage(ctx context.Context, page models.Page) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, piece := range c.splitter.Split(page.Text) {
		sized, err := c.fit(ctx, piece, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", ErrChunking, page.PageNumber, err)
		}
		for _, sp := range sized {
			chunks = append(chunks, models.Chunk{
				ChunkID:    c.newID(),
				PageNumber: page.PageNumber,
				Text:       sp.text,
				TokenCount: sp.tokens,
			})
		}
	}
	return chunks, nil
}

// fit returns piece unchanged when it is within budget, otherwise the result
// of re-splitting it at the finer granularity.
func (c *TokenBudgetChunker) fit(ctx context.Context, piece string, depth int) ([]sizedPiece, error) {
	approx := approxTokens(piece)
	if approx > c.cfg.MaxTokens {
		return c.resplit(ctx, piece, approx, depth)
	}
	if float64(approx) <= exactCountRatio*float64(c.cfg.MaxTokens) {
		return []sizedPiece{{text: piece, tokens: approx}}, nil
	}

	c.metrics.RecordExactTokenCount(ctx)
	exact, err := c.counter.CountTokens(ctx, c.cfg.TokenizerModel, piece)
	if err != nil {
		return nil, fmt.Errorf("count tokens: %w", err)
	}
	if exact <= c.cfg.MaxTokens {
		return []sizedPiece{{text: piece, tokens: exact}}, nil
	}
	return c.resplit(ctx, piece, exact, depth)
}

func (c *TokenBudgetChunker) resplit(ctx context.Context, piece string, tokens, depth int) ([]sizedPiece, error) {
	subs := c.resplitter.Split(piece)

	// No separator shortens the piece any further: keep it whole.
	if depth >= maxResplitDepth || len(subs) == 0 || (len(subs) == 1 && runeLen(subs[0]) >= runeLen(piece)) {
		logger.Debug("Emitting over-budget piece that cannot be split further",
			"chars", runeLen(piece), "tokens", tokens, "max_tokens", c.cfg.MaxTokens)
		return []sizedPiece{{text: piece, tokens: tokens}}, nil
	}

	var out []sizedPiece
	for _, sub := range subs {
		sized, err := c.fit(ctx, sub, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, sized...)
	}
	return out, nil
}

// approxTokens estimates tokens as one per four characters.
func approxTokens(s string) int {
	return runeLen(s) / 4
}
