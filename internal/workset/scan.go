package workset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/tlfpack/internal/extract"
	"github.com/jackzampolin/tlfpack/internal/titles"
)

// Diff describes what a rescan changed.
type Diff struct {
	Added   []string `json:"added,omitempty" yaml:"added,omitempty"`
	Removed []string `json:"removed,omitempty" yaml:"removed,omitempty"`
	// Queued is set when the set was suspended and the rescan was deferred.
	Queued bool `json:"queued,omitempty" yaml:"queued,omitempty"`
}

// Empty reports whether the rescan changed nothing.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// file is one listed source file.
type file struct {
	key  Key
	path string
}

// listFiles returns the source files of folder: per format sorted by name,
// formats in discovery order.
func listFiles(folder string, ignored map[string]struct{}) ([]file, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", folder, err)
	}

	byFormat := make(map[extract.Format][]file)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		format, ok := extract.DetectFormat(name)
		if !ok {
			continue
		}
		path := filepath.Join(folder, name)
		if _, skip := ignored[path]; skip {
			continue
		}
		byFormat[format] = append(byFormat[format], file{
			key:  Key{Format: format, Name: name},
			path: path,
		})
	}

	var out []file
	for _, f := range extract.Formats {
		out = append(out, byFormat[f]...)
	}
	return out, nil
}

// Rescan merges the folder's current contents into the set. Vanished files
// are removed and new files are extracted and appended as included.
// Titles are extracted once, when a file is first seen; survivors keep
// their titles and review state. The first rescan of a folder sorts the set
// by bookmark once.
//
// While the set is suspended the rescan is queued and Diff.Queued is set.
func (s *Set) Rescan(ctx context.Context) (Diff, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	s.mu.Lock()
	if s.folder == "" {
		s.mu.Unlock()
		return Diff{}, ErrNoFolder
	}
	if s.suspended > 0 {
		s.pending = true
		s.mu.Unlock()
		return Diff{Queued: true}, nil
	}
	folder, gen := s.folder, s.gen
	known := make(map[Key]struct{}, len(s.docs))
	for _, d := range s.docs {
		known[d.Key()] = struct{}{}
	}
	ignored := make(map[string]struct{}, len(s.ignored))
	for p := range s.ignored {
		ignored[p] = struct{}{}
	}
	s.mu.Unlock()

	files, err := listFiles(folder, ignored)
	if err != nil {
		return Diff{}, err
	}

	// Extraction reads every new file, so it runs outside the lock.
	fresh := make(map[Key]titles.Titles)
	for _, f := range files {
		if _, ok := known[f.key]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Diff{}, err
		}
		_, t := s.extractor.Extract(f.path)
		fresh[f.key] = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// The folder changed while extracting; this listing is stale.
		return Diff{}, nil
	}
	if s.suspended > 0 {
		s.pending = true
		return Diff{Queued: true}, nil
	}
	return s.merge(files, fresh), nil
}

// merge applies a listing to the set. Callers hold s.mu.
func (s *Set) merge(files []file, fresh map[Key]titles.Titles) Diff {
	var diff Diff
	listed := make(map[Key]file, len(files))
	for _, f := range files {
		listed[f.key] = f
	}

	kept := s.docs[:0]
	present := make(map[Key]struct{}, len(s.docs))
	for _, d := range s.docs {
		if _, ok := listed[d.Key()]; !ok {
			diff.Removed = append(diff.Removed, d.Name)
			continue
		}
		present[d.Key()] = struct{}{}
		kept = append(kept, d)
	}
	s.docs = kept

	for _, f := range files {
		if _, ok := present[f.key]; ok {
			continue
		}
		t, ok := fresh[f.key]
		if !ok {
			t = titles.ForFile(f.path)
		}
		d := Document{
			Include: true,
			Format:  f.key.Format,
			Name:    f.key.Name,
			Path:    f.path,
		}
		d.setTitles(t)
		s.docs = append(s.docs, d)
		diff.Added = append(diff.Added, d.Name)
	}

	if !s.sortedOnce {
		titles.SortStable(s.docs, func(d Document) string { return d.Bookmark })
		s.sortedOnce = true
	}

	if !diff.Empty() {
		s.logger.Debug("rescan applied", "folder", s.folder,
			"added", len(diff.Added), "removed", len(diff.Removed))
	}
	return diff
}
