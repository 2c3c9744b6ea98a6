package titles

import (
	"cmp"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Category ranks, in output order.
const (
	RankTable        = 0
	RankListing      = 1
	RankFigure       = 2
	RankAppendix     = 3
	RankUnclassified = 99
)

var (
	leadingNonLetterRe = regexp.MustCompile(`^[^a-zA-Z]*`)
	appendixNumberRe   = regexp.MustCompile(`appendix\s*(\d+)`)
	numericPathRe      = regexp.MustCompile(`\d+(?:\.\d+)*`)

	categories = []struct {
		word string
		rank int
	}{
		{"table", RankTable},
		{"listing", RankListing},
		{"figure", RankFigure},
	}
)

// SortKey orders bookmarks by category, then by numeric path.
type SortKey struct {
	Rank int   `json:"rank" yaml:"rank"`
	Path []int `json:"path" yaml:"path"`
}

// KeyFor derives the sort key of a bookmark.
func KeyFor(bookmark string) SortKey {
	text := leadingNonLetterRe.ReplaceAllString(strings.ToLower(bookmark), "")

	if strings.Contains(text, "appendix") {
		if m := appendixNumberRe.FindStringSubmatch(text); m != nil {
			return SortKey{Rank: RankAppendix, Path: []int{atoi(m[1])}}
		}
		return SortKey{Rank: RankAppendix, Path: []int{9999}}
	}

	for _, c := range categories {
		if !strings.Contains(text, c.word) {
			continue
		}
		m := numericPathRe.FindString(text)
		if m == "" {
			return SortKey{Rank: c.rank, Path: []int{0}}
		}
		parts := strings.Split(m, ".")
		path := make([]int, len(parts))
		for i, p := range parts {
			path[i] = atoi(p)
		}
		return SortKey{Rank: c.rank, Path: path}
	}

	return SortKey{Rank: RankUnclassified, Path: []int{0}}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		// Only overflow gets here; the regexps guarantee digits.
		return math.MaxInt
	}
	return n
}

// Compare orders keys by rank, then lexicographically by path.
func (k SortKey) Compare(o SortKey) int {
	if c := cmp.Compare(k.Rank, o.Rank); c != 0 {
		return c
	}
	return slices.Compare(k.Path, o.Path)
}

// SortStable orders items by the sort key of their bookmark. Items with equal
// keys keep their relative order, so sorting twice is a no-op.
func SortStable[T any](items []T, bookmark func(T) string) {
	keys := make(map[int]SortKey, len(items))
	idx := make([]int, len(items))
	for i, it := range items {
		idx[i] = i
		keys[i] = KeyFor(bookmark(it))
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return keys[a].Compare(keys[b])
	})
	sorted := make([]T, len(items))
	for i, j := range idx {
		sorted[i] = items[j]
	}
	copy(items, sorted)
}
