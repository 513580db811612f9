package services

import (
	"bytes"
	"fmt"
	"strings"
)

// pdfLine places one line of Helvetica text at a baseline y, in PDF user
// space (origin bottom-left).
type pdfLine struct {
	Text string
	Y    float64
}

// buildPDF writes a minimal, valid US Letter PDF with one page per entry.
func buildPDF(pages [][]pdfLine) []byte {
	var (
		buf     bytes.Buffer
		offsets []int
	)
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>",
		strings.Join(kids, " "), len(pages)))
	writeObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, lines := range pages {
		var content strings.Builder
		for _, l := range lines {
			fmt.Fprintf(&content, "BT /F1 12 Tf 1 0 0 1 72 %.0f Tm (%s) Tj ET\n", l.Y, escapePDFString(l.Text))
		}
		writeObj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		writeObj(fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func escapePDFString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

// threePagePDF has one fact per page and a recurring footer.
func threePagePDF() []byte {
	footer := pdfLine{Text: "Confidential Draft", Y: 40}
	return buildPDF([][]pdfLine{
		{{Text: "Zorbania is a small island nation in the northern sea.", Y: 600}, footer},
		{{Text: "The capital of Zorbania is Quillport.", Y: 600}, {Text: "Quillport has a famous harbour.", Y: 580}, footer},
		{{Text: "The main export of Zorbania is blue salt.", Y: 600}, footer},
	})
}
