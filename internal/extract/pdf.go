package extract

import (
	"fmt"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/jackzampolin/tlfpack/internal/titles"
)

// wordGap is the horizontal gap, as a fraction of the font size, above
// which two glyphs are taken to belong to different words.
const wordGap = 0.16

func planPDF(path string) (titles.Plan, error) {
	raw, err := FirstPageLines(path)
	if err != nil {
		return titles.Plan{}, err
	}
	lines := titles.Candidates(raw, titles.OriginPage)
	return titles.Plan{
		Passes:         []titles.Pass{{Lines: lines, Window: 20}},
		Fallback:       lines,
		FallbackWindow: 3,
	}, nil
}

// FirstPageLines returns the text lines of the first page of a PDF, in
// content stream order.
func FirstPageLines(path string) (lines []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			lines, err = nil, fmt.Errorf("pdf reader panicked: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	if r.NumPage() < 1 {
		return nil, nil
	}
	p := r.Page(1)
	if p.V.IsNull() {
		return nil, nil
	}
	return glyphLines(p.Content().Text), nil
}

// glyphLines joins positioned glyphs into lines. A new line starts when the
// baseline moves; a space is inserted where the horizontal gap is wider
// than a word break.
func glyphLines(glyphs []pdf.Text) []string {
	var (
		lines []string
		b     strings.Builder
		prevY float64
		prevX float64
		have  bool
	)
	flush := func() {
		if s := strings.Join(strings.Fields(b.String()), " "); s != "" {
			lines = append(lines, s)
		}
		b.Reset()
	}

	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		size := g.FontSize
		if size <= 0 {
			size = 1
		}
		if have && math.Abs(g.Y-prevY) > size/2 {
			flush()
		} else if have && g.X-prevX >= wordGap*size {
			b.WriteByte(' ')
		}
		b.WriteString(g.S)
		prevX = g.X + g.W
		prevY = g.Y
		have = true
	}
	flush()
	return lines
}
