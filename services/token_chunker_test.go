package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"pdf-rag-platform/models"
)

// fakeCounter reports runeLen/divisor tokens and records every call.
type fakeCounter struct {
	mu      sync.Mutex
	divisor int
	err     error
	calls   int
	models  []string
	texts   []string
}

func (f *fakeCounter) CountTokens(_ context.Context, model, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.models = append(f.models, model)
	f.texts = append(f.texts, text)
	if f.err != nil {
		return 0, f.err
	}
	return runeLen(text) / f.divisor, nil
}

func newTestChunker(t *testing.T, maxTokens int, counter TokenCounter) *TokenBudgetChunker {
	t.Helper()
	c, err := NewTokenBudgetChunker(ChunkerConfig{
		MaxTokens:      maxTokens,
		ChunkSize:      1200,
		ChunkOverlap:   200,
		TokenizerModel: "gemini-embedding-001",
	}, counter, nil)
	if err != nil {
		t.Fatalf("NewTokenBudgetChunker: %v", err)
	}
	return c
}

func sentences(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Sentence number %d describes finding %d in detail. ", i, i*7)
	}
	return b.String()
}

func TestChunkPageCheapPathSkipsTokenizer(t *testing.T) {
	counter := &fakeCounter{divisor: 4}
	c := newTestChunker(t, 800, counter)

	chunks, err := c.ChunkPage(context.Background(), models.Page{PageNumber: 3, Text: sentences(40)})
	if err != nil {
		t.Fatalf("ChunkPage: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	if counter.calls != 0 {
		t.Errorf("tokenizer called %d times for pieces well under budget", counter.calls)
	}

	ids := map[string]bool{}
	for _, ch := range chunks {
		if ch.PageNumber != 3 {
			t.Errorf("chunk page = %d, want 3", ch.PageNumber)
		}
		if ch.TokenCount > 800 {
			t.Errorf("token count %d over budget", ch.TokenCount)
		}
		if ch.Text == "" {
			t.Error("empty chunk text")
		}
		if ids[ch.ChunkID] {
			t.Errorf("duplicate chunk id %s", ch.ChunkID)
		}
		ids[ch.ChunkID] = true
	}
}

func TestChunkPageExactCountWithinBudget(t *testing.T) {
	counter := &fakeCounter{divisor: 3}
	c := newTestChunker(t, 400, counter)

	chunks, err := c.ChunkPage(context.Background(), models.Page{PageNumber: 1, Text: sentences(60)})
	if err != nil {
		t.Fatalf("ChunkPage: %v", err)
	}
	if counter.calls == 0 {
		t.Fatal("expected exact counts for pieces above 70% of the budget")
	}
	for _, m := range counter.models {
		if m != "gemini-embedding-001" {
			t.Errorf("tokenizer model = %q", m)
		}
	}
	for _, ch := range chunks {
		if ch.TokenCount > 400 {
			t.Errorf("token count %d over budget", ch.TokenCount)
		}
	}
}

func TestChunkPageResplitsWhenExactCountTooHigh(t *testing.T) {
	// Every 1200-rune piece estimates above 0.7*350 and measures above 350.
	counter := &fakeCounter{divisor: 2}
	c := newTestChunker(t, 350, counter)
	text := sentences(60)

	chunks, err := c.ChunkPage(context.Background(), models.Page{PageNumber: 1, Text: text})
	if err != nil {
		t.Fatalf("ChunkPage: %v", err)
	}
	if counter.calls == 0 {
		t.Fatal("tokenizer was never consulted")
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		if ch.TokenCount > 350 {
			t.Errorf("chunk %d token count %d over budget", i, ch.TokenCount)
		}
		if n := runeLen(ch.Text); n > 600 && float64(approxTokens(ch.Text)) > 0.7*350 {
			t.Errorf("chunk %d was not re-split: %d runes", i, n)
		}
		texts[i] = ch.Text
	}

	emitted := make(map[string]bool, len(texts))
	for _, tx := range texts {
		emitted[tx] = true
	}
	for _, measured := range counter.texts {
		if runeLen(measured)/2 > 350 && emitted[strings.TrimSpace(measured)] {
			t.Errorf("over-budget piece emitted whole: %d runes", runeLen(measured))
		}
	}
	assertCovers(t, text, texts, 200)
}

func TestChunkPagesTokenizerFailure(t *testing.T) {
	boom := errors.New("tokenizer unavailable")
	c := newTestChunker(t, 400, &fakeCounter{divisor: 3, err: boom})

	_, err := c.ChunkPages(context.Background(), []models.Page{
		{PageNumber: 1, Text: "short"},
		{PageNumber: 2, Text: sentences(60)},
	})
	if !errors.Is(err, ErrChunking) {
		t.Fatalf("error = %v, want ErrChunking", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("cause lost: %v", err)
	}
}

func TestChunkPageIdenticalCharactersTerminates(t *testing.T) {
	c := newTestChunker(t, 800, &fakeCounter{divisor: 4})
	text := strings.Repeat("a", 5000)

	chunks, err := c.ChunkPage(context.Background(), models.Page{PageNumber: 1, Text: text})
	if err != nil {
		t.Fatalf("ChunkPage: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("no chunks")
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		if ch.TokenCount > 800 {
			t.Errorf("chunk %d token count %d over budget", i, ch.TokenCount)
		}
		texts[i] = ch.Text
	}
	assertCovers(t, text, texts, 200)
}

func TestChunkPageUnsplittablePieceIsEmittedWhole(t *testing.T) {
	// 600-character runs still estimate to 150 tokens, above a 50 token budget.
	c := newTestChunker(t, 50, &fakeCounter{divisor: 4})

	chunks, err := c.ChunkPage(context.Background(), models.Page{PageNumber: 1, Text: strings.Repeat("a", 5000)})
	if err != nil {
		t.Fatalf("ChunkPage: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("no chunks")
	}
	for i, ch := range chunks {
		if runeLen(ch.Text) > 600 {
			t.Errorf("chunk %d has %d runes, want at most 600", i, runeLen(ch.Text))
		}
		if ch.TokenCount != approxTokens(ch.Text) {
			t.Errorf("chunk %d token count %d, want estimate %d", i, ch.TokenCount, approxTokens(ch.Text))
		}
	}
}

func TestChunkPagesKeepsPageOrder(t *testing.T) {
	c := newTestChunker(t, 800, &fakeCounter{divisor: 4})
	pages := []models.Page{
		{PageNumber: 1, Text: "Alpha page.\n"},
		{PageNumber: 2, Text: "\n"},
		{PageNumber: 3, Text: "Gamma page.\n"},
	}

	chunks, err := c.ChunkPages(context.Background(), pages)
	if err != nil {
		t.Fatalf("ChunkPages: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2 (blank page yields none)", len(chunks))
	}
	if chunks[0].PageNumber != 1 || chunks[1].PageNumber != 3 {
		t.Errorf("page numbers = %d, %d", chunks[0].PageNumber, chunks[1].PageNumber)
	}
	if chunks[0].Text != "Alpha page." || chunks[0].TokenCount != 2 {
		t.Errorf("first chunk = %+v", chunks[0])
	}
}

func TestNewTokenBudgetChunkerValidation(t *testing.T) {
	if _, err := NewTokenBudgetChunker(ChunkerConfig{MaxTokens: 0, ChunkSize: 1200, ChunkOverlap: 200}, &fakeCounter{divisor: 4}, nil); err == nil {
		t.Error("expected error for zero budget")
	}
	if _, err := NewTokenBudgetChunker(ChunkerConfig{MaxTokens: 800, ChunkSize: 1200, ChunkOverlap: 200}, nil, nil); err == nil {
		t.Error("expected error for missing counter")
	}
}
