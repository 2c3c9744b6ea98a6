package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jackzampolin/tlfpack/internal/assemble"
	"github.com/jackzampolin/tlfpack/internal/convert"
	"github.com/jackzampolin/tlfpack/internal/extract"
	"github.com/jackzampolin/tlfpack/internal/home"
	"github.com/jackzampolin/tlfpack/internal/toc"
	"github.com/jackzampolin/tlfpack/internal/workset"
)

// Job types.
const (
	TypePack    = "pack"
	TypeConvert = "convert"
)

// ErrNothingToConvert is returned when no included document needs conversion.
var ErrNothingToConvert = errors.New("no RTF or DOCX documents selected")

// Packer assembles documents into one PDF.
type Packer interface {
	Assemble(ctx context.Context, items []assemble.Item, opts assemble.Options) (*assemble.Result, error)
}

// workDir creates the scratch directory of the run executing with ctx and
// returns it with its cleanup. Without a home directory the system temp
// directory is used.
func workDir(ctx context.Context, h *home.Dir, logger *slog.Logger) (string, func(), error) {
	id := RunIDFromContext(ctx)
	if h == nil || id == "" {
		return "", func() {}, nil
	}
	dir, err := h.CreateRunDir(id)
	if err != nil {
		return "", nil, err
	}
	return dir, func() {
		if err := h.RemoveRunDir(id); err != nil {
			logger.Warn("failed to remove run directory", "dir", dir, "error", err)
		}
	}, nil
}

// PackJob merges the included documents of a working set.
type PackJob struct {
	Set    *workset.Set
	Packer Packer
	Home   *home.Dir
	// Output is the resolved output path.
	Output   string
	TOC      bool
	Geometry toc.Geometry
}

// Type implements Job.
func (j *PackJob) Type() string { return TypePack }

// Execute implements Job. The working set is held still for the whole run.
func (j *PackJob) Execute(ctx context.Context, logger *slog.Logger) (any, error) {
	release := j.Set.Suspend()
	defer release()

	docs := j.Set.Included()
	if len(docs) == 0 {
		return nil, assemble.ErrNothingToPack
	}
	j.Set.Ignore(j.Output)

	dir, cleanup, err := workDir(ctx, j.Home, logger)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	items := make([]assemble.Item, len(docs))
	for i, d := range docs {
		items[i] = assemble.Item{Path: d.Path, Format: d.Format, Bookmark: d.Bookmark}
	}
	res, err := j.Packer.Assemble(ctx, items, assemble.Options{
		Output:   j.Output,
		TOC:      j.TOC,
		Geometry: j.Geometry,
		WorkDir:  dir,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ConvertResult lists the outcome of a conversion run.
type ConvertResult struct {
	Converted []string           `json:"converted" yaml:"converted"`
	Failed    []assemble.Skipped `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// ConvertJob converts the included RTF and DOCX documents to PDFs next to
// their sources.
type ConvertJob struct {
	Set       *workset.Set
	Converter convert.Converter
}

// Type implements Job.
func (j *ConvertJob) Type() string { return TypeConvert }

// Execute implements Job. Per-file failures are logged and reported in the
// result; only cancellation stops the run early.
func (j *ConvertJob) Execute(ctx context.Context, logger *slog.Logger) (any, error) {
	release := j.Set.Suspend()
	defer release()

	var docs []workset.Document
	counts := map[extract.Format]int{}
	for _, d := range j.Set.Included() {
		if d.Format.NeedsConversion() {
			docs = append(docs, d)
			counts[d.Format]++
		}
	}
	if len(docs) == 0 {
		return nil, ErrNothingToConvert
	}
	logger.Info("converting documents", "rtf", counts[extract.FormatRTF], "docx", counts[extract.FormatDOCX])

	res := &ConvertResult{}
	for i, d := range docs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		logger.Info("processing", "n", i+1, "total", len(docs), "file", d.Name)
		out, err := j.Converter.Convert(ctx, d.Path, filepath.Dir(d.Path))
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logger.Warn("conversion failed", "file", d.Name, "error", err)
			res.Failed = append(res.Failed, assemble.Skipped{Path: d.Path, Reason: err.Error()})
			continue
		}
		res.Converted = append(res.Converted, out)
	}
	logger.Info("conversion finished", "converted", len(res.Converted), "failed", len(res.Failed))
	if len(res.Converted) == 0 {
		return res, fmt.Errorf("all %d conversions failed", len(docs))
	}
	return res, nil
}
