package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/jackzampolin/tlfpack/internal/assemble"
	"github.com/jackzampolin/tlfpack/internal/extract"
	"github.com/jackzampolin/tlfpack/internal/home"
	"github.com/jackzampolin/tlfpack/internal/titles"
	"github.com/jackzampolin/tlfpack/internal/workset"
)

type nameExtractor struct{}

func (nameExtractor) Extract(path string) (extract.Format, titles.Titles) {
	format, _ := extract.DetectFormat(path)
	return format, titles.ForFile(path)
}

func newWorkset(t *testing.T, files ...string) (*workset.Set, string) {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(f), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s := workset.New(nameExtractor{}, discardLogger())
	if err := s.SetFolder(dir); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s, dir
}

type recordingPacker struct {
	set   *workset.Set
	items []assemble.Item
	opts  assemble.Options
	held  bool
}

func (p *recordingPacker) Assemble(_ context.Context, items []assemble.Item, opts assemble.Options) (*assemble.Result, error) {
	p.items, p.opts = items, opts
	p.held = p.set.Suspended()
	if opts.WorkDir != "" {
		if _, err := os.Stat(opts.WorkDir); err != nil {
			return nil, err
		}
	}
	return &assemble.Result{Output: opts.Output, Pages: len(items)}, nil
}

func TestPackJob(t *testing.T) {
	s, dir := newWorkset(t, "a.rtf", "b.pdf", "c.docx")
	if _, err := s.SetInclude(1, false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetBookmark(0, "Table 1"); err != nil {
		t.Fatal(err)
	}
	h, err := home.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	packer := &recordingPacker{set: s}
	out := filepath.Join(dir, "TLFs_Merged_20260309_T1405.pdf")
	rn := NewRunner(discardLogger())
	run, err := rn.Start(context.Background(), RunSpec{
		Job: &PackJob{Set: s, Packer: packer, Home: h, Output: out, TOC: true},
		Key: out,
	})
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, run)
	if run.Err() != nil {
		t.Fatalf("run failed: %v", run.Err())
	}

	var got []string
	for _, it := range packer.items {
		got = append(got, filepath.Base(it.Path)+"|"+it.Bookmark)
	}
	if !slices.Equal(got, []string{"a.rtf|Table 1", "c.docx|c.docx"}) {
		t.Errorf("items = %q", got)
	}
	if !packer.held {
		t.Error("working set was not suspended during the run")
	}
	if s.Suspended() {
		t.Error("working set still suspended after the run")
	}
	if packer.opts.WorkDir != h.RunDir(run.ID()) || !packer.opts.TOC || packer.opts.Output != out {
		t.Errorf("opts = %+v", packer.opts)
	}
	if _, err := os.Stat(h.RunDir(run.ID())); !os.IsNotExist(err) {
		t.Errorf("run directory left behind: %v", err)
	}
	if res, ok := run.Result().(*assemble.Result); !ok || res.Pages != 2 {
		t.Errorf("result = %#v", run.Result())
	}

	// The output written into the folder is never picked up as a source.
	if err := os.WriteFile(out, []byte("%PDF-1.7"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 3 {
		t.Errorf("len = %d, output was picked up", s.Len())
	}
}

func TestPackJob_NothingIncluded(t *testing.T) {
	s, _ := newWorkset(t, "a.pdf")
	s.SelectAll()
	s.SelectAll()
	job := &PackJob{Set: s, Packer: &recordingPacker{set: s}, Output: "x.pdf"}
	if _, err := job.Execute(context.Background(), discardLogger()); !errors.Is(err, assemble.ErrNothingToPack) {
		t.Errorf("err = %v, want ErrNothingToPack", err)
	}
}

type stubConverter struct {
	fail map[string]bool
}

func (c stubConverter) Convert(_ context.Context, src, outDir string) (string, error) {
	if c.fail[filepath.Base(src)] {
		return "", errors.New("soffice failed")
	}
	out := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))+".pdf")
	return out, os.WriteFile(out, []byte("%PDF-1.7"), 0o644)
}

func TestConvertJob(t *testing.T) {
	s, dir := newWorkset(t, "t1.rtf", "t2.docx", "t3.pdf", "t4.rtf")

	rn := NewRunner(discardLogger())
	run, err := rn.Start(context.Background(), RunSpec{
		Job: &ConvertJob{Set: s, Converter: stubConverter{fail: map[string]bool{"t4.rtf": true}}},
		Key: dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	for line := range run.Logs() {
		lines = append(lines, line)
	}
	waitDone(t, run)
	if run.Err() != nil {
		t.Fatalf("run failed: %v", run.Err())
	}

	res := run.Result().(*ConvertResult)
	var converted []string
	for _, p := range res.Converted {
		converted = append(converted, filepath.Base(p))
	}
	if !slices.Equal(converted, []string{"t1.pdf", "t2.pdf"}) || len(res.Failed) != 1 {
		t.Errorf("result = %+v", res)
	}
	log := strings.Join(lines, "\n")
	for _, want := range []string{"msg=\"converting documents\" rtf=2 docx=1", "msg=processing n=2 total=3 file=t4.rtf", "msg=\"conversion failed\" file=t4.rtf"} {
		if !strings.Contains(log, want) {
			t.Errorf("log missing %q:\n%s", want, log)
		}
	}

	names := map[string]bool{}
	if _, err := s.Rescan(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, d := range s.Documents() {
		names[d.Name] = true
	}
	if !names["t1.pdf"] || !names["t2.pdf"] {
		t.Errorf("converted PDFs not in working set: %v", names)
	}
}

func TestConvertJob_NothingToConvert(t *testing.T) {
	s, _ := newWorkset(t, "a.pdf")
	job := &ConvertJob{Set: s, Converter: stubConverter{}}
	if _, err := job.Execute(context.Background(), discardLogger()); !errors.Is(err, ErrNothingToConvert) {
		t.Errorf("err = %v, want ErrNothingToConvert", err)
	}
}
