// Package workset holds the ordered list of documents found in the watched
// folder together with the user's review decisions: include flags, bookmark
// overrides and order. Rescans merge folder changes into it without losing
// those decisions.
package workset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jackzampolin/tlfpack/internal/extract"
	"github.com/jackzampolin/tlfpack/internal/titles"
)

var (
	// ErrNotFound is returned for document indexes outside the set.
	ErrNotFound = errors.New("document not found")
	// ErrNoFolder is returned when no folder has been chosen yet.
	ErrNoFolder = errors.New("no folder selected")
	// ErrBusy is returned when the folder is switched while a run holds the set.
	ErrBusy = errors.New("working set is in use by a run")
)

// Extractor derives the titles of one document.
type Extractor interface {
	Extract(path string) (extract.Format, titles.Titles)
}

// Key identifies a document across rescans.
type Key struct {
	Format extract.Format `json:"format" yaml:"format"`
	Name   string         `json:"name" yaml:"name"`
}

func (k Key) String() string { return fmt.Sprintf("%s:%s", k.Format, k.Name) }

// Document is one source file of the working set.
type Document struct {
	Include bool           `json:"include" yaml:"include"`
	Format  extract.Format `json:"format" yaml:"format"`
	Name    string         `json:"name" yaml:"name"`
	Path    string         `json:"path" yaml:"path"`
	Title1  string         `json:"title1" yaml:"title1"`
	Title2  string         `json:"title2" yaml:"title2"`
	Title3  string         `json:"title3" yaml:"title3"`
	// Bookmark is the effective label: the override when set, otherwise the
	// extracted one.
	Bookmark   string `json:"bookmark" yaml:"bookmark"`
	Extracted  string `json:"extracted_bookmark" yaml:"extracted_bookmark"`
	Overridden bool   `json:"overridden" yaml:"overridden"`
}

// Key returns the identity of d.
func (d Document) Key() Key { return Key{Format: d.Format, Name: d.Name} }

func (d *Document) setTitles(t titles.Titles) {
	d.Title1, d.Title2, d.Title3 = t.Title1, t.Title2, t.Title3
	d.Extracted = t.Bookmark
	if !d.Overridden {
		d.Bookmark = t.Bookmark
	}
}

// Set is the working set. All methods are safe for concurrent use.
type Set struct {
	extractor Extractor
	logger    *slog.Logger

	// scanMu serializes rescans so two listings never race on the merge.
	scanMu sync.Mutex

	mu      sync.RWMutex
	folder  string
	gen     uint64 // bumped when the folder changes
	docs    []Document
	ignored map[string]struct{}

	filter     string
	sortedOnce bool
	selectNext bool
	sortColumn Column
	sortDesc   bool
	sorted     bool

	suspended int
	pending   bool
}

// New creates an empty working set.
func New(extractor Extractor, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{
		extractor:  extractor,
		logger:     logger,
		ignored:    make(map[string]struct{}),
		selectNext: true,
	}
}

// Folder returns the current folder, or "" when none is selected.
func (s *Set) Folder() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.folder
}

// SetFolder switches to folder, dropping all review state. Call Rescan to
// populate the set.
func (s *Set) SetFolder(folder string) error {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return fmt.Errorf("invalid folder: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("invalid folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("invalid folder: %s is not a directory", abs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if abs == s.folder {
		return nil
	}
	if s.suspended > 0 {
		return ErrBusy
	}
	s.folder = abs
	s.gen++
	s.docs = nil
	s.filter = ""
	s.sortedOnce = false
	s.selectNext = true
	s.sorted = false
	return nil
}

// Ignore keeps path out of future listings. Packaged outputs written into
// the folder are registered here so they are not picked up as sources.
func (s *Set) Ignore(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.ignored[abs] = struct{}{}
	s.mu.Unlock()
}

// Suspend stops rescans from changing the set until release is called.
// Rescans requested meanwhile are queued; the last release runs one.
func (s *Set) Suspend() (release func()) {
	s.mu.Lock()
	s.suspended++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.suspended--
			run := s.suspended == 0 && s.pending
			if run {
				s.pending = false
			}
			s.mu.Unlock()
			if run {
				if _, err := s.Rescan(context.Background()); err != nil {
					s.logger.Warn("queued rescan failed", "error", err)
				}
			}
		})
	}
}

// Suspended reports whether a run currently holds the set.
func (s *Set) Suspended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suspended > 0
}

// Len returns the number of documents.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Documents returns a copy of all documents in order.
func (s *Set) Documents() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Document, len(s.docs))
	copy(out, s.docs)
	return out
}

// Included returns the included documents in order.
func (s *Set) Included() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, d := range s.docs {
		if d.Include {
			out = append(out, d)
		}
	}
	return out
}

// Counts holds the number of included documents per format.
type Counts struct {
	RTF   int `json:"rtf" yaml:"rtf"`
	PDF   int `json:"pdf" yaml:"pdf"`
	DOCX  int `json:"docx" yaml:"docx"`
	Total int `json:"total" yaml:"total"`
}

// Counts returns the included document counts.
func (s *Set) Counts() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c Counts
	for _, d := range s.docs {
		if !d.Include {
			continue
		}
		switch d.Format {
		case extract.FormatRTF:
			c.RTF++
		case extract.FormatPDF:
			c.PDF++
		case extract.FormatDOCX:
			c.DOCX++
		}
		c.Total++
	}
	return c
}
