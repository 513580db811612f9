package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"pdf-rag-platform/internal/logger"
)

// DefaultSeparators is the cascade tried from coarsest to finest. The empty
// separator splits into single characters and always applies.
var DefaultSeparators = []string{"\n\n", "\n", ".", " ", ""}

// RecursiveSplitter cuts text into pieces of at most ChunkSize characters,
// preferring the coarsest separator that occurs, and carries up to
// ChunkOverlap characters from the end of one piece into the next.
// Sizes are measured in runes.
type RecursiveSplitter struct {
	ChunkSize    int
	ChunkOverlap int

	inner textsplitter.RecursiveCharacter
}

func NewRecursiveSplitter(chunkSize, chunkOverlap int) (*RecursiveSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be in [0, %d)", chunkOverlap, chunkSize)
	}
	return &RecursiveSplitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		inner: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(DefaultSeparators),
			textsplitter.WithKeepSeparator(true),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}, nil
}

// Split returns non-empty, whitespace-trimmed pieces in document order.
func (s *RecursiveSplitter) Split(text string) []string {
	pieces, err := s.inner.SplitText(text)
	if err != nil {
		logger.Warn("Recursive split failed, keeping text whole", "error", err)
		pieces = []string{text}
	}

	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
