// Package extract reads TLF documents of the supported formats and derives
// their titles. Each format only decides which candidate lines to offer;
// matching and validation are shared through titles.Build.
package extract

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/tlfpack/internal/titles"
)

// Format is a supported source format.
type Format string

const (
	FormatRTF  Format = "RTF"
	FormatPDF  Format = "PDF"
	FormatDOCX Format = "DOCX"
)

// Formats lists the supported formats in discovery order.
var Formats = []Format{FormatRTF, FormatPDF, FormatDOCX}

// TempPrefix marks office lock files, which are never picked up.
const TempPrefix = "~$"

// NeedsConversion reports whether the format must be converted to PDF
// before it can be merged.
func (f Format) NeedsConversion() bool {
	return f == FormatRTF || f == FormatDOCX
}

// DetectFormat maps a file name to its format. Lock files and unknown
// extensions are rejected.
func DetectFormat(name string) (Format, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, TempPrefix) {
		return "", false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".rtf":
		return FormatRTF, true
	case ".pdf":
		return FormatPDF, true
	case ".docx":
		return FormatDOCX, true
	}
	return "", false
}

// Planner turns one document into a title extraction plan.
type Planner interface {
	Plan(path string) (titles.Plan, error)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(path string) (titles.Plan, error)

// Plan calls f(path).
func (f PlannerFunc) Plan(path string) (titles.Plan, error) { return f(path) }

// Extractor dispatches documents to the planner of their format.
type Extractor struct {
	logger   *slog.Logger
	planners map[Format]Planner
}

// New creates an Extractor with the built-in planners.
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		logger: logger,
		planners: map[Format]Planner{
			FormatRTF:  PlannerFunc(planRTF),
			FormatDOCX: PlannerFunc(planDOCX),
			FormatPDF:  PlannerFunc(planPDF),
		},
	}
}

// Extract derives the titles of the document at path. It never fails:
// unreadable or malformed documents get the file name as bookmark.
func (e *Extractor) Extract(path string) (Format, titles.Titles) {
	format, ok := DetectFormat(path)
	if !ok {
		return "", titles.ForFile(path)
	}
	t, err := e.extract(format, path)
	if err != nil {
		e.logger.Warn("title extraction failed", "file", filepath.Base(path), "format", format, "error", err)
		return format, titles.ForFile(path)
	}
	return format, t
}

func (e *Extractor) extract(format Format, path string) (t titles.Titles, err error) {
	planner, ok := e.planners[format]
	if !ok {
		return t, fmt.Errorf("no planner for format %s", format)
	}

	// The PDF reader panics on malformed input.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reader panicked: %v", r)
		}
	}()

	plan, err := planner.Plan(path)
	if err != nil {
		return t, err
	}
	return titles.Build(plan, path), nil
}
