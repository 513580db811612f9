package services

import (
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"
)

// assertCovers checks that chunks are in-order substrings of text that
// together cover every non-whitespace character. Consecutive chunks may share
// at most overlap characters.
func assertCovers(t *testing.T, text string, chunks []string, overlap int) {
	t.Helper()

	src := []rune(text)
	covered := make([]bool, len(src))
	cursor := 0

	for i, chunk := range chunks {
		rest := string(src[cursor:])
		b := strings.Index(rest, chunk)
		if b < 0 {
			t.Fatalf("chunk %d not found in order in the source: %q", i, chunk)
		}
		idx := cursor + utf8.RuneCountInString(rest[:b])
		n := utf8.RuneCountInString(chunk)
		for j := idx; j < idx+n; j++ {
			covered[j] = true
		}
		// The next chunk cannot start before this one's overlap window.
		cursor = max(idx+n-overlap, 0)
	}

	for i, r := range src {
		if !covered[i] && !unicode.IsSpace(r) {
			t.Fatalf("character %q at %d not covered by any chunk", r, i)
		}
	}
}

func TestRecursiveSplitterShortTextIsOnePiece(t *testing.T) {
	s, err := NewRecursiveSplitter(100, 20)
	if err != nil {
		t.Fatal(err)
	}
	got := s.Split("  A short page.\n")
	if len(got) != 1 || got[0] != "A short page." {
		t.Errorf("Split = %q", got)
	}
	if got := s.Split(" \n\n "); len(got) != 0 {
		t.Errorf("whitespace-only text produced %q", got)
	}
}

func TestRecursiveSplitterPrefersParagraphs(t *testing.T) {
	s, _ := NewRecursiveSplitter(30, 0)
	text := "First paragraph is here.\n\nSecond paragraph follows.\n\nThird one."

	got := s.Split(text)
	want := []string{"First paragraph is here.", "Second paragraph follows.", "Third one."}
	if len(got) != len(want) {
		t.Fatalf("Split = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("piece %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRecursiveSplitterSizeAndOverlap(t *testing.T) {
	s, _ := NewRecursiveSplitter(50, 10)
	text := strings.Repeat("alpha beta gamma delta ", 20)

	got := s.Split(text)
	if len(got) < 2 {
		t.Fatalf("expected several pieces, got %d", len(got))
	}
	for i, p := range got {
		if n := runeLen(p); n > 50 {
			t.Errorf("piece %d has %d runes: %q", i, n, p)
		}
	}
	// Consecutive pieces share a word at the seam.
	for i := 1; i < len(got); i++ {
		prevWords := strings.Fields(got[i-1])
		if !strings.HasPrefix(got[i], prevWords[len(prevWords)-1]) {
			t.Errorf("piece %d does not start with overlap from %q: %q", i, got[i-1], got[i])
		}
	}
	assertCovers(t, text, got, 10)
}

func TestRecursiveSplitterNoSeparators(t *testing.T) {
	s, _ := NewRecursiveSplitter(1200, 200)
	text := strings.Repeat("a", 5000)

	got := s.Split(text)
	if len(got) == 0 {
		t.Fatal("no pieces")
	}
	for i, p := range got {
		if runeLen(p) > 1200 {
			t.Errorf("piece %d has %d runes", i, runeLen(p))
		}
	}
	assertCovers(t, text, got, 200)
}

func TestRecursiveSplitterCountsRunes(t *testing.T) {
	s, _ := NewRecursiveSplitter(10, 0)
	got := s.Split(strings.Repeat("é", 25))
	for _, p := range got {
		if runeLen(p) > 10 {
			t.Errorf("piece has %d runes", runeLen(p))
		}
	}
	if strings.Join(got, "") != strings.Repeat("é", 25) {
		t.Errorf("pieces do not reassemble: %q", got)
	}
}

func TestNewRecursiveSplitterValidation(t *testing.T) {
	if _, err := NewRecursiveSplitter(0, 0); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := NewRecursiveSplitter(100, 100); err == nil {
		t.Error("expected error for overlap >= size")
	}
}

func TestRecursiveSplitterKeepsSeparators(t *testing.T) {
	s, _ := NewRecursiveSplitter(12, 0)
	text := "First.Second.Third.Fourth.Fifth."

	got := s.Split(text)
	for i, p := range got {
		if runeLen(p) > 12 {
			t.Errorf("piece %d has %d runes: %q", i, runeLen(p), p)
		}
	}
	if strings.Join(got, "") != text {
		t.Errorf("pieces dropped separators: %q", got)
	}
	assertCovers(t, text, got, 0)
}
