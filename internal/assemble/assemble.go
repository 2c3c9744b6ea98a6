// Package assemble merges documents into one PDF with one outline entry per
// document, the document's own outline nested below it, and optionally a
// clickable table of contents in front.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"

	"github.com/jackzampolin/tlfpack/internal/extract"
	"github.com/jackzampolin/tlfpack/internal/toc"
)

// ErrNothingToPack is returned when no document survives to the merge.
var ErrNothingToPack = errors.New("no documents to pack")

// Converter turns an editable document into a PDF inside outDir.
type Converter interface {
	Convert(ctx context.Context, src, outDir string) (string, error)
}

// Item is one document in output order.
type Item struct {
	Path     string
	Format   extract.Format
	Bookmark string
}

func (it Item) title() string {
	if s := strings.TrimSpace(it.Bookmark); s != "" {
		return s
	}
	return filepath.Base(it.Path)
}

// Options controls one assembly.
type Options struct {
	// Output is the final path. It is only written once the document is
	// complete.
	Output string
	// TOC prepends the table of contents.
	TOC      bool
	Geometry toc.Geometry
	// WorkDir holds the intermediate files of the run; the system temp
	// directory when empty.
	WorkDir string
	// Logger receives progress; the assembler's logger when nil.
	Logger *slog.Logger
}

// Skipped is a document left out of the merge.
type Skipped struct {
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason" yaml:"reason"`
}

// Result describes a written document.
type Result struct {
	Output     string      `json:"output" yaml:"output"`
	Pages      int         `json:"pages" yaml:"pages"`
	BodyPages  int         `json:"body_pages" yaml:"body_pages"`
	FrontPages int         `json:"front_pages" yaml:"front_pages"`
	Outline    []toc.Entry `json:"outline" yaml:"outline"`
	Skipped    []Skipped   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Assembler builds packages from documents.
type Assembler struct {
	converter Converter
	measurer  toc.Measurer
	logger    *slog.Logger
}

// New creates an Assembler. conv may be nil when only PDFs are packed.
func New(conv Converter, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{converter: conv, measurer: toc.NewHelvetica(), logger: logger}
}

// Assemble merges items in order and writes the package to opts.Output.
// Documents that fail to convert or read are logged and skipped. All
// intermediate files are removed before returning.
func (a *Assembler) Assemble(ctx context.Context, items []Item, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = a.logger
	}
	if len(items) == 0 {
		return nil, ErrNothingToPack
	}
	if opts.Output == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if opts.Geometry == (toc.Geometry{}) {
		opts.Geometry = toc.DefaultGeometry()
	}

	scratch, err := os.MkdirTemp(opts.WorkDir, "pack-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	counts := map[extract.Format]int{}
	for _, it := range items {
		counts[it.Format]++
	}
	logger.Info("packing documents",
		"rtf", counts[extract.FormatRTF], "pdf", counts[extract.FormatPDF], "docx", counts[extract.FormatDOCX])

	res := &Result{Output: opts.Output}
	var (
		inputs  []string
		outline []pdfcpu.Bookmark
	)
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Info("processing", "n", i+1, "total", len(items), "file", filepath.Base(it.Path))

		src, pages, err := a.prepare(ctx, it, filepath.Join(scratch, fmt.Sprintf("%04d", i)))
		if err != nil {
			logger.Warn("skipping document", "file", filepath.Base(it.Path), "error", err)
			res.Skipped = append(res.Skipped, Skipped{Path: it.Path, Reason: err.Error()})
			continue
		}
		kids, err := nestOutline(src, res.BodyPages, pages)
		if err != nil {
			logger.Warn("ignoring document outline", "file", filepath.Base(it.Path), "error", err)
		}
		inputs = append(inputs, src)
		res.Outline = append(res.Outline, toc.Entry{Level: 1, Title: it.title(), Page: res.BodyPages})
		outline = append(outline, pdfcpu.Bookmark{Title: it.title(), PageFrom: res.BodyPages + 1, Kids: kids})
		res.BodyPages += pages
	}
	if len(inputs) == 0 {
		return nil, ErrNothingToPack
	}

	merged := filepath.Join(scratch, "merged.pdf")
	if err := merge(inputs, merged); err != nil {
		return nil, err
	}
	body := filepath.Join(scratch, "body.pdf")
	if err := setOutline(merged, body, outline); err != nil {
		return nil, err
	}

	final := body
	if opts.TOC {
		logger.Info("inserting table of contents")
		if final, res.FrontPages, err = a.prependTOC(body, scratch, opts.Geometry); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := publish(final, opts.Output); err != nil {
		return nil, err
	}
	res.Pages = res.BodyPages + res.FrontPages

	logger.Info("pdf created", "output", opts.Output, "pages", res.Pages, "skipped", len(res.Skipped))
	return res, nil
}

// prepare resolves an item to a readable PDF and its page count.
func (a *Assembler) prepare(ctx context.Context, it Item, dir string) (string, int, error) {
	src := it.Path
	if it.Format.NeedsConversion() {
		if a.converter == nil {
			return "", 0, fmt.Errorf("no converter configured for %s", it.Format)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", 0, err
		}
		out, err := a.converter.Convert(ctx, it.Path, dir)
		if err != nil {
			return "", 0, fmt.Errorf("convert: %w", err)
		}
		src = out
	}
	n, err := PageCount(src)
	if err != nil {
		return "", 0, fmt.Errorf("read pdf: %w", err)
	}
	if n == 0 {
		return "", 0, fmt.Errorf("document has no pages")
	}
	return src, n, nil
}

// prependTOC renders the contents of body's outline and puts it in front,
// shifting the outline and linking every contents line to its page.
func (a *Assembler) prependTOC(body, scratch string, g toc.Geometry) (string, int, error) {
	entries, err := Outline(body)
	if err != nil {
		return "", 0, err
	}
	if len(entries) == 0 {
		return body, 0, nil
	}

	layout := toc.NewLayout(g, a.measurer)
	rendered, err := toc.Render(layout, layout.Paginate(entries))
	if err != nil {
		return "", 0, err
	}
	front := filepath.Join(scratch, "toc.pdf")
	if err := os.WriteFile(front, rendered.Data, 0o644); err != nil {
		return "", 0, fmt.Errorf("failed to write toc: %w", err)
	}

	bms, err := readBookmarks(body)
	if err != nil {
		return "", 0, err
	}
	combined := filepath.Join(scratch, "combined.pdf")
	if err := merge([]string{front, body}, combined); err != nil {
		return "", 0, err
	}
	outlined := filepath.Join(scratch, "outlined.pdf")
	if err := setOutline(combined, outlined, ShiftOutline(bms, rendered.Pages)); err != nil {
		return "", 0, err
	}
	final := filepath.Join(scratch, "final.pdf")
	if err := addLinks(outlined, final, rendered.Links, rendered.Pages, g.PageHeight); err != nil {
		return "", 0, err
	}
	return final, rendered.Pages, nil
}

// publish moves a finished file to dst through a temporary file in dst's
// directory, so dst never holds a partial document.
func publish(src, dst string) (err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tlfpack-*.pdf")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if _, err = io.Copy(tmp, in); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
