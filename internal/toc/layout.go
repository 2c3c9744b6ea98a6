// Package toc lays out and renders the table of contents front matter that
// precedes a merged document.
//
// Layout is pure: entries are wrapped and paginated against a Measurer and
// placed as text operations and link rectangles. Render turns the placed
// pages into PDF bytes. The front matter page count is known after
// pagination, so page labels can be printed before the final merge.
package toc

import (
	"math"
	"strconv"
	"strings"
)

// Widest page label the number column is sized for.
const maxPageLabel = "99999"

// Entry is one outline entry to be listed.
type Entry struct {
	Level int    `json:"level" yaml:"level"`
	Title string `json:"title" yaml:"title"`
	// Page is the 0-based target page within the body.
	Page int `json:"page" yaml:"page"`
}

// Geometry holds the page and typography constants of the front matter.
// All values are in points.
type Geometry struct {
	FontSize    float64
	PageWidth   float64
	PageHeight  float64
	LeftMargin  float64
	RightMargin float64
	TopMargin   float64
	Gap         float64
	Indent      float64
	Heading     string
}

// DefaultGeometry is A4 with an 8pt font.
func DefaultGeometry() Geometry {
	return Geometry{
		FontSize:    8,
		PageWidth:   595,
		PageHeight:  842,
		LeftMargin:  50,
		RightMargin: 60,
		TopMargin:   50,
		Gap:         8,
		Indent:      20,
		Heading:     "Table of Contents",
	}
}

// Measurer reports the rendered width of a string at a font size.
type Measurer interface {
	Width(s string, size float64) float64
}

// Block is one entry with its wrapped title lines. An entry's block is never
// split across pages.
type Block struct {
	Entry Entry
	Lines []string
}

// Page is one front matter page.
type Page struct {
	Blocks []Block
}

// Layout computes the derived geometry once and paginates entries against it.
type Layout struct {
	Geometry

	measure      Measurer
	spacing      float64
	numberWidth  float64
	numberX      float64
	textWidth    float64
	linesPerPage int
}

// NewLayout derives column positions and page capacity from g.
func NewLayout(g Geometry, m Measurer) *Layout {
	l := &Layout{Geometry: g, measure: m}
	l.spacing = g.FontSize * 1.5
	l.numberWidth = m.Width(maxPageLabel, g.FontSize)
	l.numberX = g.PageWidth - g.RightMargin
	l.textWidth = l.numberX - g.LeftMargin - l.numberWidth - g.Gap

	l.linesPerPage = 1
	if l.spacing > 0 {
		if n := int(math.Floor((g.PageHeight-100)/l.spacing)) - 2; n > 1 {
			l.linesPerPage = n
		}
	}
	return l
}

// LinesPerPage is the number of wrapped lines one page holds.
func (l *Layout) LinesPerPage() int { return l.linesPerPage }

// TextWidth is the title column width at level 1.
func (l *Layout) TextWidth() float64 { return l.textWidth }

func (l *Layout) indent(level int) float64 {
	if level < 1 {
		level = 1
	}
	return l.Indent * float64(level-1)
}

// Wrap breaks title into lines no wider than width, greedily by word. A
// word wider than width sits alone on its own line. An empty title yields
// one empty line so the entry still occupies a row.
func (l *Layout) Wrap(title string, width float64) []string {
	var (
		lines []string
		cur   string
	)
	for _, word := range strings.Fields(title) {
		candidate := word
		if cur != "" {
			candidate = cur + " " + word
		}
		if l.measure.Width(candidate, l.FontSize) <= width {
			cur = candidate
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
		}
		cur = word
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

// Paginate wraps every entry and fills pages in order. A page is closed when
// the next block would exceed its capacity; a block taller than a whole page
// gets a page to itself.
func (l *Layout) Paginate(entries []Entry) []Page {
	var (
		pages []Page
		cur   Page
		used  int
	)
	for _, e := range entries {
		lines := l.Wrap(e.Title, l.textWidth-l.indent(e.Level))
		if len(cur.Blocks) > 0 && used+len(lines) > l.linesPerPage {
			pages = append(pages, cur)
			cur, used = Page{}, 0
		}
		cur.Blocks = append(cur.Blocks, Block{Entry: e, Lines: lines})
		used += len(lines)
	}
	if len(cur.Blocks) > 0 {
		pages = append(pages, cur)
	}
	return pages
}

// TextOp draws Text with its baseline at (X, Y), measured from the top-left
// corner of the page.
type TextOp struct {
	X, Y float64
	Size float64
	Text string
}

// Rect is a rectangle in top-left page coordinates.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// PDF returns the rectangle as lower-left / upper-right corners in PDF user
// space for a page of the given height.
func (r Rect) PDF(pageHeight float64) (llx, lly, urx, ury float64) {
	return r.X0, pageHeight - r.Y1, r.X1, pageHeight - r.Y0
}

// LinkTarget is the clickable area of one entry.
type LinkTarget struct {
	// TOCPage is the 0-based front matter page holding the entry.
	TOCPage int
	Rect    Rect
	// TargetPage is the entry's 0-based body page, before any offset.
	TargetPage int
	// Label is the printed page number.
	Label string
}

// PageLabel is the number printed for a body page once count front matter
// pages precede the body.
func PageLabel(target, count int) string {
	return strconv.Itoa(target + count + 1)
}

// Place positions the heading, titles, dot leaders and page numbers of every
// page. ops[i] holds the drawing operations of page i.
func (l *Layout) Place(pages []Page) (ops [][]TextOp, links []LinkTarget) {
	fs := l.FontSize
	dotWidth := l.measure.Width(".", fs)

	for pi, page := range pages {
		var pageOps []TextOp
		y := l.TopMargin
		if pi == 0 && l.Heading != "" {
			hw := l.measure.Width(l.Heading, fs+2)
			pageOps = append(pageOps, TextOp{X: l.PageWidth/2 - hw/2, Y: y, Size: fs + 2, Text: l.Heading})
			y += fs * 2
		}

		for _, b := range page.Blocks {
			x := l.LeftMargin + l.indent(b.Entry.Level)
			label := PageLabel(b.Entry.Page, len(pages))
			labelWidth := l.measure.Width(label, fs)
			firstY := y

			for i, line := range b.Lines {
				if line != "" {
					pageOps = append(pageOps, TextOp{X: x, Y: y, Size: fs, Text: line})
				}
				if i == len(b.Lines)-1 {
					leaderEnd := l.numberX - labelWidth - l.Gap
					dotsX := x + l.measure.Width(line, fs) + 2
					if dotsX < leaderEnd && dotWidth > 0 {
						if n := int(math.Floor((leaderEnd - dotsX) / dotWidth)); n > 0 {
							pageOps = append(pageOps, TextOp{X: dotsX, Y: y, Size: fs, Text: strings.Repeat(".", n)})
						}
					}
					pageOps = append(pageOps, TextOp{X: l.numberX - labelWidth, Y: y, Size: fs, Text: label})
				}
				y += l.spacing
			}

			links = append(links, LinkTarget{
				TOCPage:    pi,
				Rect:       Rect{X0: x, Y0: firstY - fs, X1: l.numberX, Y1: y},
				TargetPage: b.Entry.Page,
				Label:      label,
			})
		}
		ops = append(ops, pageOps)
	}
	return ops, links
}
