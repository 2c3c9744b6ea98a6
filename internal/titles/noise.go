// Package titles turns the noisy header and body text of a clinical TLF
// document into a three-level title and a single-line bookmark.
package titles

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// footerPatterns match boilerplate that shows up in TLF headers and footers:
// page numbering, document status, dates, file metadata and copyright lines.
// They are applied to the lowercased, trimmed line.
var footerPatterns = compileAll(
	`page\s+\d+`,
	`\d+\s+of\s+\d+`,
	`confidential`,
	`proprietary`,
	`draft`,
	`final`,
	`version\s+[\d\.]+`,
	`\d{1,2}[-/]\d{1,2}[-/]\d{2,4}`,
	`^\d+$`,
	`file\s*name\s*:`,
	`^[a-z]:\\`,
	`^/[a-z]`,
	`author\s*:`,
	`date\s*:`,
	`time\s*:`,
	`printed\s+on`,
	`generated\s+on`,
	`last\s+modified`,
	`©`,
	`copyright`,
	`all\s+rights\s+reserved`,
	`sponsor`,
	`protocol\s+number`,
	`study\s+code`,
	`cdisc`,
	`sas\s+output`,
	`program\s*:`,
	`output\s*:`,
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// IsNoise reports whether a line is footer or metadata boilerplate rather
// than title content. It errs on the side of rejecting: shipping a footer
// as a title is worse than missing a title line.
func IsNoise(line string) bool {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)

	for _, re := range footerPatterns {
		if re.MatchString(lower) {
			return true
		}
	}

	n := utf8.RuneCountInString(trimmed)
	if n < 3 {
		return true
	}

	// A long token without spaces is a path, hash or identifier.
	if !strings.Contains(trimmed, " ") && n > 30 {
		return true
	}

	if utf8.RuneCountInString(line) > 8 && countLetters(line) < 3 {
		return true
	}

	return false
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
