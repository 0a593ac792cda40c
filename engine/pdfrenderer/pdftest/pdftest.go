// Package pdftest writes small PDF documents for tests
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Page describes one generated page, sizes are in points
type Page struct {
	Width  float64
	Height float64
	Text   string
	// Field adds a checked checkbox drawn as a black square
	Field *Field
}

// Field is a checkbox widget, the rectangle is in points from the bottom left
type Field struct {
	Name   string
	X, Y   float64
	Width  float64
	Height float64
}

// Pages returns n letter-sized pages labelled "Page 1" ... "Page n"
func Pages(n int) []Page {
	pages := make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		pages = append(pages, Page{Width: 612, Height: 792, Text: fmt.Sprintf("Page %d", i)})
	}
	return pages
}

// Build returns a valid PDF with one Helvetica text line per page
// and an AcroForm when any page has a field
func Build(pages []Page) []byte {
	var buf bytes.Buffer
	var offsets []int
	object := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")

	// pages and contents take 4.., widgets and their appearances follow
	kids := make([]string, 0, len(pages))
	widgets := make(map[int]int)
	var fields []string
	next := 4 + 2*len(pages)
	for i, page := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
		if page.Field != nil {
			widgets[i] = next
			fields = append(fields, fmt.Sprintf("%d 0 R", next))
			next += 2
		}
	}

	if len(fields) > 0 {
		object(fmt.Sprintf("<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [%s] >> >>", strings.Join(fields, " ")))
	} else {
		object("<< /Type /Catalog /Pages 2 0 R >>")
	}
	object(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	object("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i, page := range pages {
		annots := ""
		if widget, ok := widgets[i]; ok {
			annots = fmt.Sprintf(" /Annots [%d 0 R]", widget)
		}
		object(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R%s >>",
			page.Width, page.Height, 5+2*i, annots))
		content := fmt.Sprintf("BT /F1 12 Tf 10 10 Td (%s) Tj ET", escape(page.Text))
		object(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	for i, page := range pages {
		widget, ok := widgets[i]
		if !ok {
			continue
		}
		f := page.Field
		object(fmt.Sprintf("<< /Type /Annot /Subtype /Widget /FT /Btn /T (%s) /V /Yes /AS /Yes /F 4 /P %d 0 R /Rect [%g %g %g %g] /AP << /N << /Yes %d 0 R >> >> >>",
			escape(f.Name), 4+2*i, f.X, f.Y, f.X+f.Width, f.Y+f.Height, widget+1))
		appearance := fmt.Sprintf("0 g 0 0 %g %g re f", f.Width, f.Height)
		object(fmt.Sprintf("<< /Type /XObject /Subtype /Form /BBox [0 0 %g %g] /Length %d >>\nstream\n%s\nendstream",
			f.Width, f.Height, len(appearance), appearance))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, offset := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offset)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// WriteFile writes a generated PDF to path
func WriteFile(path string, pages []Page) error {
	return os.WriteFile(path, Build(pages), 0644)
}

func escape(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(text)
}
