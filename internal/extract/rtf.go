package extract

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/jackzampolin/tlfpack/internal/titles"
)

var (
	rtfHeaderRe      = regexp.MustCompile(`(?s)(\\header[lr]?)(.+?)(\\sectd|$)`)
	rtfControlRe     = regexp.MustCompile(`\\[a-z]+\d*\s?|[{}]`)
	rtfCellWidthRe   = regexp.MustCompile(`cellx\d+|x\d+`)
	rtfEdgePunctRe   = regexp.MustCompile(`^[-: ]+|[-: ]+$`)
	rtfLineBreakRe   = regexp.MustCompile(`[\r\n]+`)
	rtfCellMarkerRep = strings.NewReplacer(`\cell`, "\n", `\row`, "\n")
)

func planRTF(path string) (titles.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return titles.Plan{}, fmt.Errorf("failed to read rtf: %w", err)
	}
	lines := titles.Candidates(RTFHeaderLines(strings.ToValidUTF8(string(data), "")), titles.OriginHeader)
	// RTF headers are short; the whole header is searched and there is no
	// prose fallback, a header without identifier is titled by file name.
	return titles.Plan{
		Passes: []titles.Pass{{Lines: lines, Window: len(lines)}},
	}, nil
}

// RTFHeaderLines returns the cleaned text lines of the first header block of
// an RTF document, in order. A document without header block yields none.
func RTFHeaderLines(rtf string) []string {
	m := rtfHeaderRe.FindStringSubmatch(rtf)
	if m == nil {
		return nil
	}
	var lines []string
	for _, g := range BraceGroups(m[2]) {
		lines = append(lines, rtfGroupLines(g)...)
	}
	return lines
}

// BraceGroups splits text into its top-level {...} groups, each including
// its braces and any nested groups. Text outside groups and unmatched
// closing braces are dropped; an unterminated trailing group is dropped too.
func BraceGroups(text string) []string {
	var (
		groups []string
		stack  []int // offsets of open braces
	)
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			stack = append(stack, i)
		case '}':
			if len(stack) == 0 {
				continue
			}
			start := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				groups = append(groups, text[start:i+1])
			}
		}
	}
	return groups
}

// rtfGroupLines strips control words from a header group. Table cell and
// row ends become line breaks so each cell lands on its own line.
func rtfGroupLines(group string) []string {
	text := rtfCellMarkerRep.Replace(group)
	text = rtfControlRe.ReplaceAllString(text, "")
	text = rtfCellWidthRe.ReplaceAllString(text, "")

	var lines []string
	for _, l := range rtfLineBreakRe.Split(text, -1) {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		l = rtfEdgePunctRe.ReplaceAllString(l, "")
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
