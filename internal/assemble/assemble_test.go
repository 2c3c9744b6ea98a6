package assemble

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"

	"github.com/jackzampolin/tlfpack/internal/extract"
	"github.com/jackzampolin/tlfpack/internal/toc"
)

func writePDF(t *testing.T, dir, name string, pages int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for i := range pages {
		pdf.AddPage()
		pdf.Text(50, 60, fmt.Sprintf("%s page %d", name, i+1))
	}
	if err := pdf.OutputFileAndClose(p); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

// fakeConverter renders a PDF with a fixed page count for every source,
// failing for sources listed in fail.
type fakeConverter struct {
	pages int
	fail  map[string]bool
	calls []string
}

func (c *fakeConverter) Convert(_ context.Context, src, outDir string) (string, error) {
	c.calls = append(c.calls, filepath.Base(src))
	if c.fail[filepath.Base(src)] {
		return "", errors.New("converter exited with status 1")
	}
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for range c.pages {
		pdf.AddPage()
		pdf.Text(50, 60, src)
	}
	out := filepath.Join(outDir, "converted.pdf")
	return out, pdf.OutputFileAndClose(out)
}

func pageCount(t *testing.T, p string) int {
	t.Helper()
	n, err := PageCount(p)
	if err != nil {
		t.Fatalf("PageCount(%s): %v", p, err)
	}
	return n
}

func entryPages(entries []toc.Entry) []int {
	var out []int
	for _, e := range entries {
		out = append(out, e.Page)
	}
	return out
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	left, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("work dir not cleaned up: %d entries left", len(left))
	}
}

func TestAssemble_SingleDocumentWithoutTOC(t *testing.T) {
	src := t.TempDir()
	work := t.TempDir()
	doc := writePDF(t, src, "t_1.pdf", 4)
	out := filepath.Join(t.TempDir(), "out.pdf")

	res, err := New(nil, nil).Assemble(context.Background(),
		[]Item{{Path: doc, Format: extract.FormatPDF, Bookmark: "Table 1: Demographics"}},
		Options{Output: out, WorkDir: work})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := pageCount(t, out); got != 4 {
		t.Errorf("output has %d pages, want 4", got)
	}
	if res.FrontPages != 0 || res.Pages != 4 {
		t.Errorf("result = %+v", res)
	}

	outline, err := Outline(out)
	if err != nil {
		t.Fatalf("Outline: %v", err)
	}
	want := []toc.Entry{{Level: 1, Title: "Table 1: Demographics", Page: 0}}
	if !slices.Equal(outline, want) {
		t.Errorf("outline = %+v, want %+v", outline, want)
	}
	assertEmptyDir(t, work)
}

func TestAssemble_WithTOC(t *testing.T) {
	src := t.TempDir()
	work := t.TempDir()
	conv := &fakeConverter{pages: 3}
	items := []Item{
		{Path: writePDF(t, src, "t_1.pdf", 2), Format: extract.FormatPDF, Bookmark: "Table 1: Demographics"},
		{Path: filepath.Join(src, "l_2.rtf"), Format: extract.FormatRTF, Bookmark: "Listing 2: Adverse Events"},
		{Path: writePDF(t, src, "f_3.pdf", 1), Format: extract.FormatPDF},
	}
	out := filepath.Join(t.TempDir(), "package.pdf")

	res, err := New(conv, nil).Assemble(context.Background(), items, Options{Output: out, TOC: true, WorkDir: work})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.FrontPages != 1 || res.BodyPages != 6 || res.Pages != 7 {
		t.Errorf("result = %+v", res)
	}
	if got := pageCount(t, out); got != 7 {
		t.Errorf("output has %d pages, want 7", got)
	}
	if !slices.Equal(conv.calls, []string{"l_2.rtf"}) {
		t.Errorf("converter calls = %q", conv.calls)
	}

	outline, err := Outline(out)
	if err != nil {
		t.Fatalf("Outline: %v", err)
	}
	// Body pages 0, 2, 5 shifted by one front matter page.
	if got := entryPages(outline); !slices.Equal(got, []int{1, 3, 6}) {
		t.Errorf("outline pages = %v, want [1 3 6]", got)
	}
	if outline[2].Title != "f_3.pdf" {
		t.Errorf("untitled document bookmark = %q", outline[2].Title)
	}

	links, err := Links(out)
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	got := slices.Sorted(slices.Values(links[1]))
	// Printed labels are target + front pages + 1.
	if !slices.Equal(got, []int{2, 4, 7}) {
		t.Errorf("toc links = %v, want [2 4 7]", got)
	}
	assertEmptyDir(t, work)
}

// writeOutlinedPDF writes a PDF with its own outline: marks maps a 1-based
// page to the titles bookmarked on it, in nesting order.
func writeOutlinedPDF(t *testing.T, dir, name string, pages int, marks map[int][]string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for i := 1; i <= pages; i++ {
		pdf.AddPage()
		pdf.Text(50, 60, fmt.Sprintf("%s page %d", name, i))
		for level, title := range marks[i] {
			pdf.Bookmark(title, level, 0)
		}
	}
	if err := pdf.OutputFileAndClose(p); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestAssemble_KeepsDocumentOutlines(t *testing.T) {
	src := t.TempDir()
	items := []Item{
		{Path: writeOutlinedPDF(t, src, "t_1.pdf", 3, map[int][]string{2: {"Part A", "Subgroup 1"}}),
			Format: extract.FormatPDF, Bookmark: "Table 1: Demographics"},
		{Path: writePDF(t, src, "t_2.pdf", 2), Format: extract.FormatPDF, Bookmark: "Table 2: Efficacy"},
	}
	out := filepath.Join(t.TempDir(), "package.pdf")

	res, err := New(nil, nil).Assemble(context.Background(), items, Options{Output: out, TOC: true, WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.FrontPages != 1 || res.Pages != 6 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Outline) != 2 {
		t.Errorf("document entries = %+v", res.Outline)
	}

	outline, err := Outline(out)
	if err != nil {
		t.Fatalf("Outline: %v", err)
	}
	want := []toc.Entry{
		{Level: 1, Title: "Table 1: Demographics", Page: 1},
		{Level: 2, Title: "Part A", Page: 2},
		{Level: 3, Title: "Subgroup 1", Page: 2},
		{Level: 1, Title: "Table 2: Efficacy", Page: 4},
	}
	if !slices.Equal(outline, want) {
		t.Errorf("outline = %+v, want %+v", outline, want)
	}

	links, err := Links(out)
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	if got := slices.Sorted(slices.Values(links[1])); !slices.Equal(got, []int{2, 3, 3, 5}) {
		t.Errorf("toc links = %v, want [2 3 3 5]", got)
	}
}

func TestAssemble_SkipsFailedConversions(t *testing.T) {
	src := t.TempDir()
	conv := &fakeConverter{pages: 2, fail: map[string]bool{"bad.docx": true}}
	items := []Item{
		{Path: filepath.Join(src, "bad.docx"), Format: extract.FormatDOCX},
		{Path: writePDF(t, src, "ok.pdf", 1), Format: extract.FormatPDF},
		{Path: filepath.Join(src, "good.rtf"), Format: extract.FormatRTF},
	}
	out := filepath.Join(t.TempDir(), "out.pdf")

	res, err := New(conv, nil).Assemble(context.Background(), items, Options{Output: out, WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Path != items[0].Path {
		t.Errorf("skipped = %+v", res.Skipped)
	}
	if got := pageCount(t, out); got != 3 {
		t.Errorf("output has %d pages, want 3", got)
	}
}

func TestAssemble_NothingToPack(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "out.pdf")
	a := New(&fakeConverter{fail: map[string]bool{"a.rtf": true}}, nil)

	t.Run("no items", func(t *testing.T) {
		if _, err := a.Assemble(context.Background(), nil, Options{Output: out}); !errors.Is(err, ErrNothingToPack) {
			t.Errorf("err = %v, want ErrNothingToPack", err)
		}
	})

	t.Run("every item fails", func(t *testing.T) {
		work := t.TempDir()
		items := []Item{
			{Path: filepath.Join(src, "a.rtf"), Format: extract.FormatRTF},
			{Path: filepath.Join(src, "missing.pdf"), Format: extract.FormatPDF},
		}
		_, err := a.Assemble(context.Background(), items, Options{Output: out, WorkDir: work})
		if !errors.Is(err, ErrNothingToPack) {
			t.Errorf("err = %v, want ErrNothingToPack", err)
		}
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Errorf("output should not exist, stat err = %v", err)
		}
		assertEmptyDir(t, work)
	})
}

func TestAssemble_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := filepath.Join(t.TempDir(), "out.pdf")
	items := []Item{{Path: writePDF(t, t.TempDir(), "a.pdf", 1), Format: extract.FormatPDF}}

	if _, err := New(nil, nil).Assemble(ctx, items, Options{Output: out}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output should not exist, stat err = %v", err)
	}
}

func TestShiftOutline(t *testing.T) {
	in := []pdfcpu.Bookmark{
		{Title: "Table 1", PageFrom: 1, Kids: []pdfcpu.Bookmark{
			{Title: "Part A", PageFrom: 2},
			{Title: "", PageFrom: 3},
		}},
		{Title: "broken", PageFrom: 0},
		{Title: "Listing 2", PageFrom: 4},
	}
	got := ShiftOutline(in, 2)
	if len(got) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(got), got)
	}
	if got[0].PageFrom != 3 || got[1].PageFrom != 6 {
		t.Errorf("pages = %d, %d", got[0].PageFrom, got[1].PageFrom)
	}
	if len(got[0].Kids) != 1 || got[0].Kids[0].PageFrom != 4 {
		t.Errorf("kids = %+v", got[0].Kids)
	}
	if in[0].PageFrom != 1 {
		t.Error("input outline was modified")
	}
}

func TestShiftOutline_Bounded(t *testing.T) {
	in := []pdfcpu.Bookmark{
		{Title: "Before", PageFrom: 1},
		{Title: "Past the end", PageFrom: 9, Kids: []pdfcpu.Bookmark{{Title: "Child", PageFrom: 12}}},
	}
	// A three page document starting at body page 4.
	got := shiftOutline(in, 4, 5, 7)
	if len(got) != 2 || got[0].PageFrom != 5 || got[1].PageFrom != 7 {
		t.Fatalf("got %+v", got)
	}
	if len(got[1].Kids) != 1 || got[1].Kids[0].PageFrom != 7 {
		t.Errorf("kids = %+v", got[1].Kids)
	}
}

func TestOutputPath(t *testing.T) {
	now := time.Date(2026, 3, 9, 14, 5, 0, 0, time.Local)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "taken.pdf"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "taken_v2.pdf"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"default", "", "TLFs_Merged_20260309_T1405.pdf"},
		{"stale default is refreshed", "TLFs_Merged_20250101_T0000.pdf", "TLFs_Merged_20260309_T1405.pdf"},
		{"extension appended", "study_pack", "study_pack.pdf"},
		{"extension kept", "study_pack.PDF", "study_pack.PDF"},
		{"collision", "taken", "taken_v3.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutputPath(dir, tt.in, now); got != filepath.Join(dir, tt.want) {
				t.Errorf("OutputPath(%q) = %q, want %q", tt.in, got, filepath.Join(dir, tt.want))
			}
		})
	}

	abs := filepath.Join(t.TempDir(), "elsewhere.pdf")
	if got := OutputPath(dir, abs, now); got != abs {
		t.Errorf("absolute path rewritten to %q", got)
	}
}
