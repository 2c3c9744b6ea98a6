package toc

import (
	"bytes"
	"slices"
	"strings"
	"testing"
	"unicode/utf8"
)

// fixedWidth measures every rune as half the font size wide.
type fixedWidth struct{}

func (fixedWidth) Width(s string, size float64) float64 {
	return float64(utf8.RuneCountInString(s)) * size / 2
}

func TestNewLayout_Defaults(t *testing.T) {
	l := NewLayout(DefaultGeometry(), fixedWidth{})
	if got := l.LinesPerPage(); got != 59 {
		t.Errorf("LinesPerPage() = %d, want 59", got)
	}
	// 535 (number column) - 50 (left) - 20 ("99999") - 8 (gap)
	if got := l.TextWidth(); got != 457 {
		t.Errorf("TextWidth() = %v, want 457", got)
	}
}

func TestNewLayout_TinyPageHoldsOneLine(t *testing.T) {
	g := DefaultGeometry()
	g.PageHeight = 90
	if got := NewLayout(g, fixedWidth{}).LinesPerPage(); got != 1 {
		t.Errorf("LinesPerPage() = %d, want 1", got)
	}
}

func TestWrap(t *testing.T) {
	l := NewLayout(DefaultGeometry(), fixedWidth{})
	tests := []struct {
		name  string
		title string
		width float64
		want  []string
	}{
		{"fits", "Table 1 Demographics", 200, []string{"Table 1 Demographics"}},
		{"breaks on words", "aaaa bbbb cccc", 40, []string{"aaaa bbbb", "cccc"}},
		{"oversized word alone", "a bb supercalifragilistic c", 20, []string{"a bb", "supercalifragilistic", "c"}},
		{"collapses whitespace", "  a   b  ", 200, []string{"a b"}},
		{"empty title keeps a row", "", 200, []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Wrap(tt.title, tt.width); !slices.Equal(got, tt.want) {
				t.Errorf("Wrap(%q, %v) = %q, want %q", tt.title, tt.width, got, tt.want)
			}
		})
	}
}

// narrowGeometry yields a 10 character title column and 3 lines per page.
func narrowGeometry() Geometry {
	g := DefaultGeometry()
	g.PageWidth = 178
	g.PageHeight = 160
	return g
}

func pageTitles(pages []Page) [][]string {
	var out [][]string
	for _, p := range pages {
		var titles []string
		for _, b := range p.Blocks {
			titles = append(titles, b.Entry.Title)
		}
		out = append(out, titles)
	}
	return out
}

func TestPaginate(t *testing.T) {
	l := NewLayout(narrowGeometry(), fixedWidth{})
	if l.LinesPerPage() != 3 || l.TextWidth() != 40 {
		t.Fatalf("unexpected geometry: %d lines, %v wide", l.LinesPerPage(), l.TextWidth())
	}

	t.Run("blocks are never split", func(t *testing.T) {
		pages := l.Paginate([]Entry{
			{Level: 1, Title: "aaaaa bbbbb", Page: 0},
			{Level: 1, Title: "cc", Page: 2},
			{Level: 1, Title: "ddddd eeeee", Page: 4},
			{Level: 1, Title: "f", Page: 6},
		})
		want := [][]string{{"aaaaa bbbbb", "cc"}, {"ddddd eeeee", "f"}}
		if got := pageTitles(pages); !slices.EqualFunc(got, want, slices.Equal) {
			t.Errorf("pages = %q, want %q", got, want)
		}
		for _, p := range pages {
			for _, b := range p.Blocks {
				if len(b.Lines) == 0 {
					t.Errorf("block %q has no lines", b.Entry.Title)
				}
			}
		}
	})

	t.Run("oversized block gets its own page", func(t *testing.T) {
		big := "aaaaa bbbbb ccccc ddddd eeeee"
		pages := l.Paginate([]Entry{{Level: 1, Title: big}, {Level: 1, Title: "x"}})
		want := [][]string{{big}, {"x"}}
		if got := pageTitles(pages); !slices.EqualFunc(got, want, slices.Equal) {
			t.Errorf("pages = %q, want %q", got, want)
		}
		if n := len(pages[0].Blocks[0].Lines); n != 5 {
			t.Errorf("oversized block has %d lines, want 5", n)
		}
	})

	t.Run("deeper levels wrap narrower", func(t *testing.T) {
		// Level 2 loses 20pt of the 40pt column.
		pages := l.Paginate([]Entry{{Level: 2, Title: "aaaa bbbb"}})
		if got := pages[0].Blocks[0].Lines; !slices.Equal(got, []string{"aaaa", "bbbb"}) {
			t.Errorf("lines = %q", got)
		}
	})

	t.Run("no entries", func(t *testing.T) {
		if pages := l.Paginate(nil); len(pages) != 0 {
			t.Errorf("expected no pages, got %d", len(pages))
		}
	})
}

func TestPlace(t *testing.T) {
	l := NewLayout(DefaultGeometry(), fixedWidth{})
	pages := l.Paginate([]Entry{
		{Level: 1, Title: "Table 1: Demo", Page: 0},
		{Level: 2, Title: "Sub", Page: 11},
	})
	ops, links := l.Place(pages)
	if len(ops) != 1 {
		t.Fatalf("got %d pages of ops, want 1", len(ops))
	}

	heading := ops[0][0]
	if heading.Text != "Table of Contents" || heading.Size != 10 || heading.Y != 50 {
		t.Errorf("heading = %+v", heading)
	}
	// Centered: 17 runes at 5pt each.
	if heading.X != 595.0/2-85.0/2 {
		t.Errorf("heading X = %v", heading.X)
	}

	want := []TextOp{
		{X: 50, Y: 66, Size: 8, Text: "Table 1: Demo"},
		{X: 104, Y: 66, Size: 8, Text: strings.Repeat(".", 104)},
		{X: 531, Y: 66, Size: 8, Text: "2"},
		{X: 70, Y: 78, Size: 8, Text: "Sub"},
	}
	if got := ops[0][1:5]; !slices.Equal(got, want) {
		t.Errorf("ops = %+v\nwant %+v", got, want)
	}
	if last := ops[0][len(ops[0])-1]; last.Text != "13" || last.X != 527 {
		t.Errorf("second label = %+v", last)
	}

	wantLinks := []LinkTarget{
		{TOCPage: 0, Rect: Rect{X0: 50, Y0: 58, X1: 535, Y1: 78}, TargetPage: 0, Label: "2"},
		{TOCPage: 0, Rect: Rect{X0: 70, Y0: 70, X1: 535, Y1: 90}, TargetPage: 11, Label: "13"},
	}
	if !slices.Equal(links, wantLinks) {
		t.Errorf("links = %+v\nwant %+v", links, wantLinks)
	}
}

func TestPlace_LabelsCountFrontMatter(t *testing.T) {
	l := NewLayout(narrowGeometry(), fixedWidth{})
	var entries []Entry
	for i := range 7 {
		entries = append(entries, Entry{Level: 1, Title: "x", Page: i * 3})
	}
	pages := l.Paginate(entries)
	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(pages))
	}
	_, links := l.Place(pages)
	if len(links) != len(entries) {
		t.Fatalf("got %d links, want %d", len(links), len(entries))
	}
	for i, link := range links {
		if want := PageLabel(entries[i].Page, len(pages)); link.Label != want {
			t.Errorf("link %d label = %q, want %q", i, link.Label, want)
		}
		if link.TOCPage != i/3 {
			t.Errorf("link %d on page %d, want %d", i, link.TOCPage, i/3)
		}
	}
	if PageLabel(4, 3) != "8" {
		t.Errorf("PageLabel(4, 3) = %q", PageLabel(4, 3))
	}
}

func TestPlace_NoDotsWhenTitleReachesColumn(t *testing.T) {
	l := NewLayout(DefaultGeometry(), fixedWidth{})
	// A single overlong word runs past the start of the leader column.
	title := strings.Repeat("w", 120)
	ops, _ := l.Place(l.Paginate([]Entry{{Level: 1, Title: title}}))
	for _, op := range ops[0] {
		if strings.HasPrefix(op.Text, ".") {
			t.Errorf("unexpected leader %+v", op)
		}
	}
}

func TestRect_PDF(t *testing.T) {
	llx, lly, urx, ury := Rect{X0: 50, Y0: 58, X1: 535, Y1: 78}.PDF(842)
	if llx != 50 || lly != 764 || urx != 535 || ury != 784 {
		t.Errorf("PDF() = %v %v %v %v", llx, lly, urx, ury)
	}
}

func TestHelvetica_Width(t *testing.T) {
	h := NewHelvetica()
	// Helvetica digits are 556/1000 em wide.
	if got := h.Width("99999", 8); got < 22.23 || got > 22.25 {
		t.Errorf("Width(99999, 8) = %v", got)
	}
	if a, b := h.Width("Table", 8), h.Width("Table", 16); b <= a {
		t.Errorf("width does not scale with size: %v, %v", a, b)
	}
}

func TestRender(t *testing.T) {
	l := NewLayout(DefaultGeometry(), NewHelvetica())
	var entries []Entry
	for i := range 130 {
		entries = append(entries, Entry{Level: 1, Title: "Table 14.1.1: Summary of Demographics – Safety Population", Page: i})
	}
	pages := l.Paginate(entries)
	r, err := Render(l, pages)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if r.Pages != len(pages) || r.Pages != 3 {
		t.Errorf("Pages = %d, paginated %d, want 3", r.Pages, len(pages))
	}
	if len(r.Links) != len(entries) {
		t.Errorf("got %d links, want %d", len(r.Links), len(entries))
	}
	if !bytes.HasPrefix(r.Data, []byte("%PDF-")) {
		t.Errorf("output is not a PDF: %q", r.Data[:min(len(r.Data), 8)])
	}
}

func TestRender_NoPages(t *testing.T) {
	if _, err := Render(NewLayout(DefaultGeometry(), fixedWidth{}), nil); err == nil {
		t.Error("expected error for empty page list")
	}
}
