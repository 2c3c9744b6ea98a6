package workset

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jackzampolin/tlfpack/internal/titles"
)

// Column is a sortable column of the review table.
type Column int

const (
	ColumnInclude Column = iota
	ColumnFormat
	ColumnName
	ColumnTitle1
	ColumnTitle2
	ColumnTitle3
	ColumnBookmark
)

var columnNames = map[Column]string{
	ColumnInclude:  "include",
	ColumnFormat:   "format",
	ColumnName:     "filename",
	ColumnTitle1:   "title1",
	ColumnTitle2:   "title2",
	ColumnTitle3:   "title3",
	ColumnBookmark: "bookmark",
}

func (c Column) String() string {
	if n, ok := columnNames[c]; ok {
		return n
	}
	return "column(" + strconv.Itoa(int(c)) + ")"
}

// ParseColumn maps a column name to its Column.
func ParseColumn(name string) (Column, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "include":
		return ColumnInclude, nil
	case "format", "type", "file_type":
		return ColumnFormat, nil
	case "filename", "name", "file":
		return ColumnName, nil
	case "title1", "title_1":
		return ColumnTitle1, nil
	case "title2", "title_2":
		return ColumnTitle2, nil
	case "title3", "title_3":
		return ColumnTitle3, nil
	case "bookmark":
		return ColumnBookmark, nil
	}
	return 0, fmt.Errorf("unknown column %q", name)
}

// SortOrder selects the direction of SortBy.
type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
	// Toggle flips the direction when the column is already the sort
	// column and sorts ascending otherwise.
	Toggle SortOrder = "toggle"
)

// Row is a document together with its position in the set.
type Row struct {
	Index int `json:"index" yaml:"index"`
	Document
}

// SetFilter sets the search text. An empty query shows every document.
func (s *Set) SetFilter(query string) {
	s.mu.Lock()
	s.filter = strings.ToLower(strings.TrimSpace(query))
	s.mu.Unlock()
}

// Filter returns the current search text.
func (s *Set) Filter() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// matches reports whether any column of d contains the lowercased query.
func matches(d Document, query string) bool {
	if query == "" {
		return true
	}
	for _, v := range []string{
		strconv.FormatBool(d.Include), string(d.Format), d.Name,
		d.Title1, d.Title2, d.Title3, d.Bookmark,
	} {
		if strings.Contains(strings.ToLower(v), query) {
			return true
		}
	}
	return false
}

// visible returns the indexes shown under the current filter. Callers hold s.mu.
func (s *Set) visible() []int {
	idx := make([]int, 0, len(s.docs))
	for i, d := range s.docs {
		if matches(d, s.filter) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Rows returns the documents shown under the current filter.
func (s *Set) Rows() []Row {
	return s.Search(s.Filter())
}

// Search returns the documents matching query, ignoring the stored filter.
func (s *Set) Search(query string) []Row {
	query = strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]Row, 0, len(s.docs))
	for i, d := range s.docs {
		if matches(d, query) {
			rows = append(rows, Row{Index: i, Document: d})
		}
	}
	return rows
}

// Get returns the document at index.
func (s *Set) Get(index int) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.docs) {
		return Document{}, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return s.docs[index], nil
}

func (s *Set) update(index int, fn func(*Document)) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.docs) {
		return Document{}, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	fn(&s.docs[index])
	return s.docs[index], nil
}

// SetInclude sets the include flag of the document at index.
func (s *Set) SetInclude(index int, include bool) (Document, error) {
	return s.update(index, func(d *Document) { d.Include = include })
}

// ToggleInclude flips the include flag of the document at index.
func (s *Set) ToggleInclude(index int) (Document, error) {
	return s.update(index, func(d *Document) { d.Include = !d.Include })
}

// SetBookmark overrides the bookmark of the document at index. An empty
// bookmark drops the override and restores the extracted one.
func (s *Set) SetBookmark(index int, bookmark string) (Document, error) {
	bookmark = strings.TrimSpace(bookmark)
	return s.update(index, func(d *Document) {
		if bookmark == "" || bookmark == d.Extracted {
			d.Overridden = false
			d.Bookmark = d.Extracted
			return
		}
		d.Overridden = true
		d.Bookmark = bookmark
	})
}

// SelectAll sets the include flag of every visible document, alternating
// between selecting and deselecting on successive calls. It returns the
// value applied and the number of documents changed. With no visible
// documents nothing happens and the alternation does not advance.
func (s *Set) SelectAll() (include bool, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.visible()
	if len(idx) == 0 {
		return s.selectNext, 0
	}
	include = s.selectNext
	for _, i := range idx {
		s.docs[i].Include = include
	}
	s.selectNext = !s.selectNext
	return include, len(idx)
}

// Move swaps the document at index with its neighbour: delta -1 moves it
// up, +1 down. At either end it stays put. The new index is returned.
func (s *Set) Move(index, delta int) (int, error) {
	if delta != -1 && delta != 1 {
		return index, fmt.Errorf("invalid move delta %d", delta)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.docs) {
		return index, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	to := index + delta
	if to < 0 || to >= len(s.docs) {
		return index, nil
	}
	s.docs[index], s.docs[to] = s.docs[to], s.docs[index]
	return to, nil
}

// MoveTo moves the document at index to position, shifting the documents
// in between. Positions past either end are clamped.
func (s *Set) MoveTo(index, position int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.docs) {
		return index, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	position = max(0, min(position, len(s.docs)-1))
	d := s.docs[index]
	s.docs = slices.Delete(s.docs, index, index+1)
	s.docs = slices.Insert(s.docs, position, d)
	return position, nil
}

// SortBy reorders the whole set by column. The include column sorts
// excluded before included, the bookmark column by sort key, and the
// other columns case-insensitively. Equal rows keep their relative order
// in both directions. It returns the direction applied.
func (s *Set) SortBy(col Column, order SortOrder) (SortOrder, error) {
	if _, ok := columnNames[col]; !ok {
		return "", fmt.Errorf("unknown column %d", col)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	desc := false
	switch order {
	case Ascending, "":
	case Descending:
		desc = true
	case Toggle:
		desc = s.sorted && s.sortColumn == col && !s.sortDesc
	default:
		return "", fmt.Errorf("unknown sort order %q", order)
	}

	compare := compareBy(col)
	slices.SortStableFunc(s.docs, func(a, b Document) int {
		if desc {
			return compare(b, a)
		}
		return compare(a, b)
	})
	s.sorted, s.sortColumn, s.sortDesc = true, col, desc
	if desc {
		return Descending, nil
	}
	return Ascending, nil
}

func compareBy(col Column) func(a, b Document) int {
	switch col {
	case ColumnInclude:
		return func(a, b Document) int {
			return cmp.Compare(boolRank(a.Include), boolRank(b.Include))
		}
	case ColumnBookmark:
		return func(a, b Document) int {
			return titles.KeyFor(a.Bookmark).Compare(titles.KeyFor(b.Bookmark))
		}
	}
	field := func(d Document) string {
		switch col {
		case ColumnFormat:
			return string(d.Format)
		case ColumnName:
			return d.Name
		case ColumnTitle1:
			return d.Title1
		case ColumnTitle2:
			return d.Title2
		default:
			return d.Title3
		}
	}
	return func(a, b Document) int {
		return strings.Compare(strings.ToLower(field(a)), strings.ToLower(field(b)))
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Decision is a stored review decision for one document.
type Decision struct {
	Key      Key
	Include  bool
	Bookmark string
}

// Restore applies stored decisions. Documents named by decisions take the
// decision order at the front of the set; the rest follow in their current
// order. Decisions for documents not in the set are returned unapplied.
func (s *Set) Restore(decisions []Decision) (applied int, missing []Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := make(map[Key]int, len(s.docs))
	for i, d := range s.docs {
		pos[d.Key()] = i
	}

	used := make([]bool, len(s.docs))
	ordered := make([]Document, 0, len(s.docs))
	for _, dec := range decisions {
		i, ok := pos[dec.Key]
		if !ok || used[i] {
			if !ok {
				missing = append(missing, dec.Key)
			}
			continue
		}
		used[i] = true
		d := s.docs[i]
		d.Include = dec.Include
		bm := strings.TrimSpace(dec.Bookmark)
		if bm == "" || bm == d.Extracted {
			d.Overridden = false
			d.Bookmark = d.Extracted
		} else {
			d.Overridden = true
			d.Bookmark = bm
		}
		ordered = append(ordered, d)
		applied++
	}
	for i, d := range s.docs {
		if !used[i] {
			ordered = append(ordered, d)
		}
	}
	s.docs = ordered
	return applied, missing
}
