package services

import "strings"

const (
	// Lines whose top-down position falls in the first 12% of the page are
	// header candidates; beyond 88% they are footer candidates.
	headerZoneRatio = 0.12
	footerZoneRatio = 0.88

	DefaultHeaderFooterThreshold = 0.5
)

// LayoutLine is one line of page text with its vertical position measured
// from the top edge of the page.
type LayoutLine struct {
	Text string
	Top  float64
}

// PageLayout is the positioned text of one page.
type PageLayout struct {
	Height float64
	Lines  []LayoutLine
}

// Text joins the page lines in reading order.
func (p PageLayout) Text() string {
	parts := make([]string, len(p.Lines))
	for i, l := range p.Lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, "\n")
}

// HeaderFooterSet holds the normalized text of recurring header and footer lines.
type HeaderFooterSet struct {
	Headers map[string]struct{}
	Footers map[string]struct{}
}

// Contains reports whether line is a known header or footer.
func (s HeaderFooterSet) Contains(line string) bool {
	key := strings.TrimSpace(line)
	if key == "" {
		return false
	}
	if _, ok := s.Headers[key]; ok {
		return true
	}
	_, ok := s.Footers[key]
	return ok
}

// DetectHeadersFooters returns the lines that sit in the header or footer zone
// on at least threshold of all pages. Each page counts a line once.
func DetectHeadersFooters(pages []PageLayout, threshold float64) HeaderFooterSet {
	set := HeaderFooterSet{Headers: map[string]struct{}{}, Footers: map[string]struct{}{}}
	if len(pages) == 0 {
		return set
	}

	headerCounts := map[string]int{}
	footerCounts := map[string]int{}

	for _, page := range pages {
		if page.Height <= 0 {
			continue
		}
		seenHeader := map[string]bool{}
		seenFooter := map[string]bool{}
		for _, line := range page.Lines {
			key := strings.TrimSpace(line.Text)
			if key == "" {
				continue
			}
			switch {
			case line.Top < headerZoneRatio*page.Height:
				if !seenHeader[key] {
					seenHeader[key] = true
					headerCounts[key]++
				}
			case line.Top > footerZoneRatio*page.Height:
				if !seenFooter[key] {
					seenFooter[key] = true
					footerCounts[key]++
				}
			}
		}
	}

	total := float64(len(pages))
	for key, n := range headerCounts {
		if float64(n)/total >= threshold {
			set.Headers[key] = struct{}{}
		}
	}
	for key, n := range footerCounts {
		if float64(n)/total >= threshold {
			set.Footers[key] = struct{}{}
		}
	}
	return set
}

// StripHeadersFooters drops every line of text that matches a detected header
// or footer, wherever it appears on the page.
func StripHeadersFooters(text string, set HeaderFooterSet) string {
	if len(set.Headers) == 0 && len(set.Footers) == 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if set.Contains(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
