package endpoints

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tlfpack/internal/api"
	"github.com/jackzampolin/tlfpack/internal/manifest"
	"github.com/jackzampolin/tlfpack/internal/svcctx"
	"github.com/jackzampolin/tlfpack/internal/workset"
)

// ManifestRows is the review table in export form.
type ManifestRows []manifest.Row

// Header implements api.Table.
func (m ManifestRows) Header() []string {
	return []string{"ORDER", "INCLUDE", "TYPE", "FILENAME", "BOOKMARK"}
}

// Rows implements api.Table.
func (m ManifestRows) Rows() [][]string {
	rows := make([][]string, len(m))
	for i, r := range m {
		rows[i] = []string{strconv.Itoa(r.Order), strconv.Itoa(r.Include), r.FileType, r.Filename, r.Bookmark}
	}
	return rows
}

// manifestPath resolves a review file path against the folder.
func manifestPath(folder, p string) string {
	if p == "" {
		p = manifest.DefaultName
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(folder, p)
	}
	return p
}

// ExportEndpoint handles GET /export.
type ExportEndpoint struct{}

func (e *ExportEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/export", e.handler
}

func (e *ExportEndpoint) RequiresFolder() bool { return true }

// handler godoc
//
//	@Summary		Export the review table
//	@Description	Every document in order with its include flag, titles and bookmark.
//	@Description	format=yaml returns the file as written by save-manifest.
//	@Tags			manifest
//	@Produce		json
//	@Produce		plain
//	@Param			format	query		string	false	"json (default) or yaml"
//	@Success		200		{array}		manifest.Row
//	@Router			/export [get]
func (e *ExportEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	set, ok := setOrFail(w, r)
	if !ok {
		return
	}
	rows := manifest.Rows(set.Documents())
	if r.URL.Query().Get("format") == string(manifest.FormatYAML) {
		var buf bytes.Buffer
		if err := manifest.Write(&buf, rows, manifest.FormatYAML); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
		return
	}
	if rows == nil {
		rows = []manifest.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (e *ExportEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export the review table, to stdout or to a local .yaml/.json file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var rows []manifest.Row
			if err := client.Get(ctx, "/export", &rows); err != nil {
				return err
			}
			if len(args) == 1 {
				return manifest.WriteFile(args[0], rows)
			}
			return api.Output(ManifestRows(rows))
		},
	}
}

// SaveManifestRequest names the file to write, relative to the folder.
type SaveManifestRequest struct {
	Path string `json:"path,omitempty"`
}

// SaveManifestResponse reports the written file.
type SaveManifestResponse struct {
	Path string `json:"path" yaml:"path"`
	Rows int    `json:"rows" yaml:"rows"`
}

// SaveManifestEndpoint handles POST /export.
type SaveManifestEndpoint struct{}

func (e *SaveManifestEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/export", e.handler
}

func (e *SaveManifestEndpoint) RequiresFolder() bool { return true }

// handler godoc
//
//	@Summary		Save the review table into the folder
//	@Description	Writes TLF_Bookmarks.yaml (or path) so the review can be restored later
//	@Tags			manifest
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SaveManifestRequest	false	"Target file"
//	@Success		200		{object}	SaveManifestResponse
//	@Router			/export [post]
func (e *SaveManifestEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	set, ok := setOrFail(w, r)
	if !ok {
		return
	}
	var req SaveManifestRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	path := manifestPath(set.Folder(), req.Path)
	rows := manifest.Rows(set.Documents())
	if err := manifest.WriteFile(path, rows); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	svcctx.LoggerFrom(r.Context()).Info("review table saved", "path", path, "rows", len(rows))
	writeJSON(w, http.StatusOK, SaveManifestResponse{Path: path, Rows: len(rows)})
}

func (e *SaveManifestEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "save-manifest [path]",
		Short: "Write the review table into the working folder (TLF_Bookmarks.yaml)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var req SaveManifestRequest
			if len(args) == 1 {
				req.Path = args[0]
			}
			client := api.NewClient(getServerURL())
			var resp SaveManifestResponse
			if err := client.Post(ctx, "/export", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ImportRequest applies a review table, either inline or from a file on
// the server. With neither, the folder's TLF_Bookmarks.yaml is read.
type ImportRequest struct {
	Path string          `json:"path,omitempty"`
	Rows json.RawMessage `json:"rows,omitempty"`
}

// ImportResponse reports how many rows matched a document.
type ImportResponse struct {
	Applied int           `json:"applied" yaml:"applied"`
	Missing []workset.Key `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// ImportEndpoint handles POST /import.
type ImportEndpoint struct{}

func (e *ImportEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/import", e.handler
}

func (e *ImportEndpoint) RequiresFolder() bool { return true }

// handler godoc
//
//	@Summary		Restore a review table
//	@Description	Apply include flags, bookmarks and order from an exported table.
//	@Description	Rows naming files that are no longer in the folder are reported.
//	@Tags			manifest
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ImportRequest	false	"Rows or file"
//	@Success		200		{object}	ImportResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/import [post]
func (e *ImportEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	set, ok := setOrFail(w, r)
	if !ok {
		return
	}
	var req ImportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		rows []manifest.Row
		err  error
	)
	if len(req.Rows) > 0 {
		rows, err = manifest.Read(bytes.NewReader(req.Rows))
	} else {
		rows, err = manifest.ReadFile(manifestPath(set.Folder(), req.Path))
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeErr(w, err)
		return
	}

	applied, missing := manifest.Apply(set, rows)
	svcctx.LoggerFrom(r.Context()).Info("review table restored", "applied", applied, "missing", len(missing))
	writeJSON(w, http.StatusOK, ImportResponse{Applied: applied, Missing: missing})
}

func (e *ImportEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Restore a review table from a local file or the folder's TLF_Bookmarks.yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var req ImportRequest
			if len(args) == 1 {
				rows, err := manifest.ReadFile(args[0])
				if err != nil {
					return err
				}
				data, err := json.Marshal(rows)
				if err != nil {
					return err
				}
				req.Rows = data
			}
			client := api.NewClient(getServerURL())
			var resp ImportResponse
			if err := client.Post(ctx, "/import", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
