package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/jackzampolin/tlfpack/internal/titles"
)

const (
	docxMainPart = "word/document.xml"
	docxRelsPart = "word/_rels/document.xml.rels"
	relNS        = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

// DOCXText is the text of a DOCX document in reading order.
type DOCXText struct {
	// Header holds the default header of each section. A section without
	// its own header repeats the previous section's.
	Header []string
	// Body holds top-level body paragraphs followed by table cells,
	// row-major across all top-level tables.
	Body []string
}

func planDOCX(p string) (titles.Plan, error) {
	doc, err := ReadDOCX(p)
	if err != nil {
		return titles.Plan{}, err
	}
	header := titles.Candidates(doc.Header, titles.OriginHeader)
	body := titles.Candidates(doc.Body, titles.OriginBody)
	return titles.Plan{
		Passes: []titles.Pass{
			{Lines: header, Window: 10, Anchored: true},
			{Lines: body, Window: 15, Anchored: true},
		},
		Fallback:       append(append([]titles.Line{}, header...), body...),
		FallbackWindow: 15,
	}, nil
}

// ReadDOCX reads header and body text from a DOCX file.
func ReadDOCX(p string) (*DOCXText, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	main, ok := files[docxMainPart]
	if !ok {
		return nil, fmt.Errorf("%s not found in archive", docxMainPart)
	}

	rels := map[string]string{}
	if f, ok := files[docxRelsPart]; ok {
		if rels, err = readRelationships(f); err != nil {
			return nil, err
		}
	}

	body, headerRefs, err := readPart(main)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", docxMainPart, err)
	}

	out := &DOCXText{Body: body.lines()}
	var prev []string
	for _, id := range headerRefs {
		var lines []string
		if id == "" {
			lines = prev
		} else if f, ok := files[path.Join("word", rels[id])]; ok {
			h, _, err := readPart(f)
			if err != nil {
				return nil, fmt.Errorf("parse header %s: %w", f.Name, err)
			}
			lines = h.lines()
		}
		out.Header = append(out.Header, lines...)
		prev = lines
	}
	return out, nil
}

type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

func readRelationships(f *zip.File) (map[string]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open relationships: %w", err)
	}
	defer rc.Close()

	var rels relationships
	if err := xml.NewDecoder(rc).Decode(&rels); err != nil {
		return nil, fmt.Errorf("parse relationships: %w", err)
	}
	m := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		m[r.ID] = strings.TrimPrefix(r.Target, "/word/")
	}
	return m, nil
}

// partText collects the paragraphs of one WordprocessingML part.
type partText struct {
	paragraphs []string
	cells      []string
}

func (p partText) lines() []string {
	return append(append([]string{}, p.paragraphs...), p.cells...)
}

// readPart walks a document or header part. It returns its top-level
// paragraphs and table cells, and, for the main part, the default header
// reference of each section ("" for sections inheriting the previous one).
func readPart(f *zip.File) (partText, []string, error) {
	rc, err := f.Open()
	if err != nil {
		return partText{}, nil, err
	}
	defer rc.Close()

	var (
		out        partText
		headerRefs []string
		dec        = xml.NewDecoder(rc)
		tblDepth   int
		pDepth     int
		inText     bool
		para       strings.Builder
		cell       []string
		inCell     bool
		sectHeader string
		inSect     bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return partText{}, nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tblDepth++
			case "tc":
				if tblDepth == 1 {
					inCell = true
					cell = cell[:0]
				}
			case "p":
				// Text box paragraphs nest inside a paragraph; only the
				// outer paragraph's own runs count.
				pDepth++
				if pDepth == 1 {
					para.Reset()
				}
			case "t":
				inText = pDepth == 1
			case "tab":
				if pDepth == 1 {
					para.WriteByte('\t')
				}
			case "br", "cr":
				if pDepth == 1 {
					para.WriteByte('\n')
				}
			case "sectPr":
				inSect = true
				sectHeader = ""
			case "headerReference":
				if inSect && attr(t, "", "type") == "default" {
					sectHeader = attr(t, relNS, "id")
				}
			}

		case xml.CharData:
			if inText {
				para.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				pDepth--
				if pDepth > 0 {
					continue
				}
				text := para.String()
				switch {
				case tblDepth == 0:
					if s := strings.TrimSpace(text); s != "" {
						out.paragraphs = append(out.paragraphs, s)
					}
				case tblDepth == 1 && inCell:
					cell = append(cell, text)
				}
			case "tc":
				if tblDepth == 1 && inCell {
					inCell = false
					if s := strings.TrimSpace(strings.Join(cell, "\n")); s != "" {
						out.cells = append(out.cells, s)
					}
				}
			case "tbl":
				tblDepth--
			case "sectPr":
				inSect = false
				headerRefs = append(headerRefs, sectHeader)
			}
		}
	}
	return out, headerRefs, nil
}

func attr(el xml.StartElement, space, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local && (space == "" || a.Name.Space == space) {
			return a.Value
		}
	}
	return ""
}
