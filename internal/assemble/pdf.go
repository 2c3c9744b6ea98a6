package assemble

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/jackzampolin/tlfpack/internal/toc"
)

var disableConfigDir sync.Once

// pdfConf returns a relaxed configuration that never touches the user's
// pdfcpu config directory.
func pdfConf() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.CreateBookmarks = false
	return conf
}

// PageCount returns the number of pages of the PDF at path.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return api.PageCount(f, pdfConf())
}

// Outline reads the outline of the PDF at path, flattened depth first into
// 0-based entries. Items with an empty title or no resolvable page are
// dropped.
func Outline(path string) ([]toc.Entry, error) {
	bms, err := readBookmarks(path)
	if err != nil {
		return nil, err
	}
	var out []toc.Entry
	var walk func([]pdfcpu.Bookmark, int)
	walk = func(items []pdfcpu.Bookmark, level int) {
		for _, bm := range items {
			title := strings.TrimSpace(bm.Title)
			if title != "" && bm.PageFrom >= 1 {
				out = append(out, toc.Entry{Level: level, Title: title, Page: bm.PageFrom - 1})
			}
			walk(bm.Kids, level+1)
		}
	}
	walk(bms, 1)
	return out, nil
}

func readBookmarks(path string) ([]pdfcpu.Bookmark, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bms, err := api.Bookmarks(f, pdfConf())
	if err != nil {
		return nil, fmt.Errorf("read outline: %w", err)
	}
	return bms, nil
}

// merge concatenates inputs into out.
func merge(inputs []string, out string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("nothing to merge")
	}
	if err := api.MergeCreateFile(inputs, out, false, pdfConf()); err != nil {
		return fmt.Errorf("merge %d files: %w", len(inputs), err)
	}
	return nil
}

// nestOutline returns the outline of the document at src, moved to start
// at body page start (0-based) and kept within its pages pages, for use as
// the children of the document's own entry.
func nestOutline(src string, start, pages int) ([]pdfcpu.Bookmark, error) {
	bms, err := readBookmarks(src)
	if err != nil || len(bms) == 0 {
		return nil, err
	}
	return shiftOutline(bms, start, start+1, start+pages), nil
}

// setOutline replaces the outline of in and writes the result to out.
func setOutline(in, out string, bms []pdfcpu.Bookmark) error {
	if len(bms) == 0 {
		return copyFile(in, out)
	}
	if err := api.AddBookmarksFile(in, out, bms, true, pdfConf()); err != nil {
		return fmt.Errorf("write outline: %w", err)
	}
	return nil
}

// ShiftOutline moves every outline item offset pages later. Items without
// a title or page are dropped together with their children; children that
// would start before their parent are clamped to it.
func ShiftOutline(bms []pdfcpu.Bookmark, offset int) []pdfcpu.Bookmark {
	return shiftOutline(bms, offset, 0, 0)
}

// shiftOutline is ShiftOutline with pages clamped to [floor, ceil]; a zero
// ceil leaves pages unbounded above.
func shiftOutline(bms []pdfcpu.Bookmark, offset, floor, ceil int) []pdfcpu.Bookmark {
	var out []pdfcpu.Bookmark
	for _, bm := range bms {
		if strings.TrimSpace(bm.Title) == "" || bm.PageFrom < 1 {
			continue
		}
		page := max(bm.PageFrom+offset, floor)
		if ceil > 0 {
			page = min(page, ceil)
		}
		if n := len(out); n > 0 && page < out[n-1].PageFrom {
			page = out[n-1].PageFrom
		}
		out = append(out, pdfcpu.Bookmark{
			Title:    bm.Title,
			PageFrom: page,
			Bold:     bm.Bold,
			Italic:   bm.Italic,
			Color:    bm.Color,
			Kids:     shiftOutline(bm.Kids, offset, page, ceil),
		})
	}
	return out
}

// addLinks adds one internal link per target to the front matter pages of
// in, pointing past the frontPages-long front matter, and writes out.
func addLinks(in, out string, links []toc.LinkTarget, frontPages int, pageHeight float64) error {
	if len(links) == 0 {
		return copyFile(in, out)
	}
	m := make(map[int][]model.AnnotationRenderer)
	for _, l := range links {
		llx, lly, urx, ury := l.Rect.PDF(pageHeight)
		dest := &model.Destination{Typ: model.DestFit, PageNr: l.TargetPage + frontPages + 1}
		ann := model.NewLinkAnnotation(
			*types.NewRectangle(llx, lly, urx, ury),
			0, "", "", "", 0, nil,
			dest, "", nil,
			false, 0, model.BSSolid,
		)
		m[l.TOCPage+1] = append(m[l.TOCPage+1], ann)
	}
	if err := api.AddAnnotationsMapFile(in, out, m, pdfConf(), false); err != nil {
		return fmt.Errorf("add toc links: %w", err)
	}
	return nil
}

// Links returns the internal link destinations of every page of the PDF at
// path, keyed by 1-based page number.
func Links(path string) (map[int][]int, error) {
	disableConfigDir.Do(api.DisableConfigDir)
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, err
	}
	out := make(map[int][]int)
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		d, _, _, err := ctx.PageDict(pageNr, false)
		if err != nil {
			return nil, err
		}
		arr, err := ctx.DereferenceArray(d["Annots"])
		if err != nil || arr == nil {
			continue
		}
		for _, o := range arr {
			annot, err := ctx.DereferenceDict(o)
			if err != nil || annot == nil {
				continue
			}
			if st := annot.NameEntry("Subtype"); st == nil || *st != "Link" {
				continue
			}
			dest, err := ctx.DereferenceArray(annot["Dest"])
			if err != nil || len(dest) == 0 {
				continue
			}
			ir, ok := dest[0].(types.IndirectRef)
			if !ok {
				continue
			}
			target, err := ctx.PageNumber(ir.ObjectNumber.Value())
			if err != nil {
				continue
			}
			out[pageNr] = append(out[pageNr], target)
		}
	}
	return out, nil
}
