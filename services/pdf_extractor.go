package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.opentelemetry.io/otel/attribute"

	"pdf-rag-platform/internal/logger"
	"pdf-rag-platform/models"
)

// US Letter, used when a page carries no usable MediaBox.
const defaultPageHeight = 792.0

// PDFExtractor turns a PDF on disk into cleaned, numbered pages with
// recurring headers and footers removed.
type PDFExtractor struct {
	threshold float64
}

func NewPDFExtractor(headerFooterThreshold float64) *PDFExtractor {
	if headerFooterThreshold <= 0 {
		headerFooterThreshold = DefaultHeaderFooterThreshold
	}
	return &PDFExtractor{threshold: headerFooterThreshold}
}

// Extract reads every page of the PDF at path. It returns all pages or an
// ErrExtraction error, never a partial document.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (pages []models.Page, err error) {
	ctx, span := tracer.Start(ctx, "rag.extract")
	defer span.End()

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: malformed pdf: %v", ErrExtraction, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %w", ErrExtraction, err)
	}
	defer f.Close()

	total := reader.NumPage()
	if total == 0 {
		return nil, fmt.Errorf("%w: pdf has no pages", ErrExtraction)
	}

	layouts := make([]PageLayout, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
		}
		layout, err := readPageLayout(reader.Page(i))
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", ErrExtraction, i, err)
		}
		layouts[i-1] = layout
	}

	hf := DetectHeadersFooters(layouts, e.threshold)
	if len(hf.Headers)+len(hf.Footers) > 0 {
		logger.Debug("Detected recurring headers/footers",
			"headers", len(hf.Headers), "footers", len(hf.Footers), "pages", total)
	}

	pages = make([]models.Page, total)
	for i, layout := range layouts {
		pages[i] = models.Page{
			PageNumber: i + 1,
			Text:       CleanText(StripHeadersFooters(layout.Text(), hf)),
		}
	}

	span.SetAttributes(attribute.Int("rag.pages", total))
	return pages, nil
}

// readPageLayout groups the page's text into rows ordered top to bottom.
func readPageLayout(page pdf.Page) (PageLayout, error) {
	if page.V.IsNull() {
		return PageLayout{Height: defaultPageHeight}, nil
	}

	top, height := pageBox(page)
	layout := PageLayout{Height: height}

	rows, err := page.GetTextByRow()
	if err != nil {
		return PageLayout{}, fmt.Errorf("read text rows: %w", err)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position > rows[j].Position })

	for _, row := range rows {
		content := row.Content
		sort.SliceStable(content, func(i, j int) bool { return content[i].X < content[j].X })

		var b strings.Builder
		for _, t := range content {
			b.WriteString(t.S)
		}
		text := b.String()
		if strings.TrimSpace(text) == "" {
			continue
		}
		layout.Lines = append(layout.Lines, LayoutLine{
			Text: text,
			Top:  top - float64(row.Position),
		})
	}
	return layout, nil
}

// pageBox returns the top y coordinate and the height of the page's
// MediaBox, following inheritance through the page tree.
func pageBox(page pdf.Page) (top, height float64) {
	v := page.V
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if box.Len() == 4 {
			lly, ury := box.Index(1).Float64(), box.Index(3).Float64()
			if ury > lly {
				return ury, ury - lly
			}
		}
		v = v.Key("Parent")
	}
	return defaultPageHeight, defaultPageHeight
}
