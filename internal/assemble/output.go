package assemble

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultPrefix starts every generated output name.
const DefaultPrefix = "TLFs_Merged_"

// DefaultName is the output name used when none is given.
func DefaultName(now time.Time) string {
	return DefaultPrefix + now.Format("20060102_T1504") + ".pdf"
}

// OutputPath resolves the file a run writes to. An empty name, or one that
// still carries the generated prefix, gets a fresh timestamped name; ".pdf"
// is appended when missing; relative names land in folder. An existing file
// is never overwritten: "_v2", "_v3", ... is appended until the path is free.
func OutputPath(folder, name string, now time.Time) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(filepath.Base(name), DefaultPrefix) {
		dir := filepath.Dir(name)
		name = DefaultName(now)
		if dir != "." {
			name = filepath.Join(dir, name)
		}
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		name += ".pdf"
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(folder, name)
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	out := name
	for n := 2; exists(out); n++ {
		out = fmt.Sprintf("%s_v%d%s", base, n, ext)
	}
	return out
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
