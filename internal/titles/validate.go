package titles

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	bracketRefRe  = regexp.MustCompile(`\[\d+\]`)
	controlWordRe = regexp.MustCompile(`^\\?\*`)
	allCapsRe     = regexp.MustCompile(`^[A-Z0-9\\*]+$`)
	noteClauseRe  = regexp.MustCompile(`(?i)\bNote\s*:`)
)

// IsPlausibleTitle reports whether a line reads like title prose.
func IsPlausibleTitle(line string) bool {
	c := strings.TrimSpace(line)
	if c == "" {
		return false
	}
	if IsNoise(c) {
		return false
	}
	if strings.HasPrefix(strings.ToLower(c), "note:") {
		return false
	}
	// Version numbers and dotted paths.
	if strings.Count(c, ".") > 2 {
		return false
	}
	if bracketRefRe.MatchString(c) {
		return false
	}
	if controlWordRe.MatchString(c) {
		return false
	}
	if allCapsRe.MatchString(c) {
		return false
	}

	n := utf8.RuneCountInString(c)
	if n > 5 && float64(countLetters(c))/float64(n) < 0.3 {
		return false
	}
	return true
}

// StripNote cuts a trailing "Note:" clause from a line.
func StripNote(line string) string {
	if loc := noteClauseRe.FindStringIndex(line); loc != nil {
		line = line[:loc[0]]
	}
	return strings.TrimSpace(line)
}
