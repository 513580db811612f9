package services

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	hyphenBreakRe   = regexp.MustCompile(`([\p{L}\p{N}_]+)-\n([\p{L}\p{N}_]+)`)
	blankRunRe      = regexp.MustCompile(`\n\s*\n\s*\n+`)
	trailingSpaceRe = regexp.MustCompile(`(?m)[ \t]+$`)
	pageNumberRe    = regexp.MustCompile(`(?m)^[ \t]*_?\d+_?[ \t]*$`)
	underscoreRe    = regexp.MustCompile(`(?m)^[ \t]*_+[ \t]*$`)
	multiSpaceRe    = regexp.MustCompile(` {2,}`)
	headingRe       = regexp.MustCompile(`(?m)^[ \t]*(CHAPTER|Chapter|SECTION|Section)[ \t]+\d+.*$`)
	bulletRe        = regexp.MustCompile(`[•▪‣]`)
)

// CleanText normalizes raw page text into paragraphs separated by one blank
// line, ending with a single newline. It is deterministic and idempotent.
func CleanText(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = hyphenBreakRe.ReplaceAllString(text, "$1$2")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	text = trailingSpaceRe.ReplaceAllString(text, "")
	text = pageNumberRe.ReplaceAllString(text, "")
	text = underscoreRe.ReplaceAllString(text, "")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = norm.NFKC.String(text)
	text = headingRe.ReplaceAllString(text, "")
	text = bulletRe.ReplaceAllString(text, "")

	paragraphs := mergeParagraphs(strings.Split(text, "\n"))
	return strings.TrimSpace(strings.Join(paragraphs, "\n\n")) + "\n"
}

// mergeParagraphs joins consecutive lines with single spaces. A paragraph ends
// at a blank line or after a line ending in sentence punctuation.
func mergeParagraphs(lines []string) []string {
	var (
		paragraphs []string
		buf        strings.Builder
	)
	flush := func() {
		p := multiSpaceRe.ReplaceAllString(buf.String(), " ")
		buf.Reset()
		// A merged paragraph can itself look like a page number or heading.
		if p == "" || isNoiseLine(p) {
			return
		}
		paragraphs = append(paragraphs, p)
	}

	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			flush()
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(stripped)
		if strings.HasSuffix(stripped, ".") || strings.HasSuffix(stripped, "!") || strings.HasSuffix(stripped, "?") {
			flush()
		}
	}
	flush()
	return paragraphs
}

func isNoiseLine(s string) bool {
	return pageNumberRe.MatchString(s) || underscoreRe.MatchString(s) || headingRe.MatchString(s)
}
