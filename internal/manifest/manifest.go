// Package manifest exports the review table of a working set to an
// editable file and applies an edited file back.
package manifest

import (
	"bytes"
	"cmp"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/tlfpack/internal/extract"
	"github.com/jackzampolin/tlfpack/internal/workset"
)

// DefaultName is the export file written into the folder.
const DefaultName = "TLF_Bookmarks.yaml"

// ErrInvalid is returned for files that do not match the export schema.
var ErrInvalid = errors.New("invalid review file")

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("manifest.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("failed to load manifest schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("manifest.json")
	})
	return schema, schemaErr
}

// Row is one line of the review table.
type Row struct {
	Include  int    `json:"include" yaml:"include"` // 1 included, 0 excluded
	FileType string `json:"file_type" yaml:"file_type"`
	Filename string `json:"filename" yaml:"filename"`
	Title1   string `json:"title1" yaml:"title1"`
	Title2   string `json:"title2" yaml:"title2"`
	Title3   string `json:"title3" yaml:"title3"`
	Bookmark string `json:"bookmark" yaml:"bookmark"`
	Order    int    `json:"order" yaml:"order"` // 1-based position
}

// Format is an export encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor picks the encoding from a file extension, YAML by default.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Rows builds the review table of docs in their current order.
func Rows(docs []workset.Document) []Row {
	rows := make([]Row, len(docs))
	for i, d := range docs {
		include := 0
		if d.Include {
			include = 1
		}
		rows[i] = Row{
			Include:  include,
			FileType: string(d.Format),
			Filename: d.Name,
			Title1:   d.Title1,
			Title2:   d.Title2,
			Title3:   d.Title3,
			Bookmark: d.Bookmark,
			Order:    i + 1,
		}
	}
	return rows
}

// Write encodes rows to w.
func Write(w io.Writer, rows []Row, format Format) error {
	if rows == nil {
		rows = []Row{}
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown manifest format %q", format)
}

// WriteFile writes rows to path in the encoding its extension selects.
func WriteFile(path string, rows []Row) error {
	var buf bytes.Buffer
	if err := Write(&buf, rows, FormatFor(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Read decodes and validates a review file. JSON is read as YAML.
func Read(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	// Round-trip through JSON so the validator sees JSON value types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	s, err := compiled()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var rows []Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return rows, nil
}

// ReadFile reads and validates the review file at path.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Apply restores include flags, bookmarks and order from rows. Rows are
// taken in Order; documents the file does not name keep their relative
// order after the named ones. Rows naming files no longer in the set are
// returned.
func Apply(set *workset.Set, rows []Row) (applied int, missing []workset.Key) {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b Row) int { return cmp.Compare(a.Order, b.Order) })

	decisions := make([]workset.Decision, len(sorted))
	for i, r := range sorted {
		decisions[i] = workset.Decision{
			Key:      workset.Key{Format: extract.Format(strings.ToUpper(r.FileType)), Name: r.Filename},
			Include:  r.Include == 1,
			Bookmark: r.Bookmark,
		}
	}
	return set.Restore(decisions)
}
