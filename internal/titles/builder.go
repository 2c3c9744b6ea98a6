package titles

import (
	"path/filepath"
	"regexp"
	"strings"
)

const identifierExpr = `(?:(Table|Listing|Figure)\s+)?(Appendix)\s+\d+(?:\.\d+)*[A-Za-z0-9]*` +
	`|(Table|Listing|Figure)\s+\d+(?:\.\d+)*[A-Za-z0-9]*`

var (
	identifierRe         = regexp.MustCompile(`(?i)` + identifierExpr)
	anchoredIdentifierRe = regexp.MustCompile(`(?i)^(?:` + identifierExpr + `)`)
)

// separators trimmed between the identifier and the rest of its line.
const separators = " :–-"

// Origin tells where in a document a candidate line was read from.
type Origin int

const (
	OriginHeader Origin = iota
	OriginBody
	OriginTableCell
	OriginPage
)

// Line is one candidate line of extracted text.
type Line struct {
	Text   string
	Origin Origin
	Index  int
}

// Match is an identifier token found in a line, e.g. "Table 14.1.1" or
// "Listing Appendix 2". Start and End are byte offsets into the line.
type Match struct {
	Token string
	Start int
	End   int
}

// FindIdentifier locates the first identifier token in line. With anchored
// set the token must open the line.
func FindIdentifier(line string, anchored bool) (Match, bool) {
	re := identifierRe
	if anchored {
		re = anchoredIdentifierRe
	}
	loc := re.FindStringIndex(line)
	if loc == nil {
		return Match{}, false
	}
	return Match{Token: line[loc[0]:loc[1]], Start: loc[0], End: loc[1]}, true
}

// Pass is one ordered scan over candidate lines. Only the first Window lines
// are searched for an identifier; the Title-2/3 lookahead may read past it.
type Pass struct {
	Lines    []Line
	Window   int
	Anchored bool
}

// Plan is the full extraction recipe of one document: identifier passes in
// priority order, then a fallback scan used when no pass matched.
type Plan struct {
	Passes []Pass
	// Fallback lines are taken in order, up to FallbackWindow of them,
	// keeping the first three plausible ones. A zero window disables it.
	Fallback       []Line
	FallbackWindow int
}

// Titles is the extraction result for one document.
type Titles struct {
	Title1   string `json:"title1" yaml:"title1"`
	Title2   string `json:"title2" yaml:"title2"`
	Title3   string `json:"title3" yaml:"title3"`
	Bookmark string `json:"bookmark" yaml:"bookmark"`
	// Identified is set when an identifier token anchored the titles.
	Identified bool `json:"identified" yaml:"identified"`
}

// ForFile returns the titles of a document nothing could be read from:
// no titles and the bare file name as bookmark.
func ForFile(path string) Titles {
	return Titles{Bookmark: filepath.Base(path)}
}

type scanState int

const (
	stateSearching scanState = iota
	stateAwaitTitle2
	stateAwaitTitle3
	stateDone
)

// scanner walks one pass line by line.
type scanner struct {
	state    scanState
	anchored bool
	window   int
	t        Titles
}

func (s *scanner) step(i int, line string) {
	switch s.state {
	case stateSearching:
		if i >= s.window {
			s.state = stateDone
			return
		}
		m, ok := FindIdentifier(line, s.anchored)
		if !ok || IsNoise(m.Token) {
			return
		}
		s.t.Title1 = strings.TrimSpace(m.Token)
		s.t.Identified = true
		rest := StripNote(strings.Trim(line[m.End:], separators))
		if rest != "" && IsPlausibleTitle(rest) {
			s.t.Title2 = rest
		}
		s.state = stateAwaitTitle2

	case stateAwaitTitle2:
		if s.t.Title2 == "" {
			if c := StripNote(line); IsPlausibleTitle(c) {
				s.t.Title2 = c
			}
		}
		s.state = stateAwaitTitle3

	case stateAwaitTitle3:
		if c := StripNote(line); IsPlausibleTitle(c) {
			s.t.Title3 = c
		}
		s.state = stateDone
	}
}

// scan runs one pass. It reports whether an identifier was found.
func scan(p Pass) (Titles, bool) {
	s := &scanner{state: stateSearching, anchored: p.Anchored, window: p.Window}
	for i, l := range p.Lines {
		s.step(i, l.Text)
		if s.state == stateDone {
			break
		}
	}
	return s.t, s.t.Identified
}

// fallback keeps the first three plausible lines in the window as titles.
func fallback(lines []Line, window int) Titles {
	var t Titles
	if window > len(lines) {
		window = len(lines)
	}
	for _, l := range lines[:window] {
		c := StripNote(l.Text)
		if !IsPlausibleTitle(c) {
			continue
		}
		switch {
		case t.Title1 == "":
			t.Title1 = c
		case t.Title2 == "":
			t.Title2 = c
		default:
			t.Title3 = c
		}
		if t.Title3 != "" {
			break
		}
	}
	return t
}

// Build runs a plan and composes the bookmark. name is used as the bookmark
// when nothing else could be extracted.
func Build(plan Plan, name string) Titles {
	var t Titles
	found := false
	for _, p := range plan.Passes {
		if t, found = scan(p); found {
			break
		}
	}
	if !found {
		t = fallback(plan.Fallback, plan.FallbackWindow)
	}

	t.Bookmark = ComposeBookmark(t.Title1, t.Title2, t.Title3)
	if strings.TrimSpace(t.Bookmark) == "" {
		t.Bookmark = filepath.Base(name)
	}
	return t
}

// ComposeBookmark joins the titles as "T1: T2 - T3", skipping empty parts.
func ComposeBookmark(t1, t2, t3 string) string {
	b := t1
	if t2 != "" {
		b += ": " + t2
	}
	if t3 != "" {
		b += " - " + t3
	}
	return b
}

// Candidates wraps raw text lines as candidate lines of one origin, dropping
// blank lines and noise.
func Candidates(texts []string, origin Origin) []Line {
	out := make([]Line, 0, len(texts))
	for _, s := range texts {
		s = strings.TrimSpace(s)
		if s == "" || IsNoise(s) {
			continue
		}
		out = append(out, Line{Text: s, Origin: origin, Index: len(out)})
	}
	return out
}
