package toc

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/jung-kurt/gofpdf"
)

const fontFamily = "Helvetica"

// Helvetica measures text with the metrics of the standard Helvetica font,
// the font Render draws with.
type Helvetica struct {
	mu        sync.Mutex
	pdf       *gofpdf.Fpdf
	translate func(string) string
}

// NewHelvetica returns a Measurer backed by gofpdf's core font metrics.
func NewHelvetica() *Helvetica {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetFont(fontFamily, "", 10)
	return &Helvetica{pdf: pdf, translate: pdf.UnicodeTranslatorFromDescriptor("")}
}

// Width returns the width of s in points at the given size.
func (h *Helvetica) Width(s string, size float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pdf.SetFontSize(size)
	return h.pdf.GetStringWidth(h.translate(s))
}

// Rendered is the front matter as a standalone PDF.
type Rendered struct {
	Data  []byte
	Pages int
	Links []LinkTarget
}

// Render draws pages as a PDF document sized to the layout's geometry.
func Render(l *Layout, pages []Page) (*Rendered, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to render")
	}
	ops, links := l.Place(pages)

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: l.PageWidth, Ht: l.PageHeight},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("tlfpack", true)
	translate := pdf.UnicodeTranslatorFromDescriptor("")

	for _, pageOps := range ops {
		pdf.AddPage()
		for _, op := range pageOps {
			pdf.SetFont(fontFamily, "", op.Size)
			pdf.Text(op.X, op.Y, translate(op.Text))
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render toc: %w", err)
	}
	return &Rendered{Data: buf.Bytes(), Pages: len(ops), Links: links}, nil
}
