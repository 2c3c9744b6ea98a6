package endpoints

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tlfpack/internal/api"
	"github.com/jackzampolin/tlfpack/internal/workset"
)

// DocumentsResponse is the review grid of the working folder.
type DocumentsResponse struct {
	Folder    string         `json:"folder" yaml:"folder"`
	Filter    string         `json:"filter,omitempty" yaml:"filter,omitempty"`
	Documents []workset.Row  `json:"documents" yaml:"documents"`
	Counts    workset.Counts `json:"counts" yaml:"counts"`
}

// Header implements api.Table.
func (d DocumentsResponse) Header() []string {
	return []string{"#", "INCLUDE", "TYPE", "FILENAME", "BOOKMARK"}
}

// Rows implements api.Table.
func (d DocumentsResponse) Rows() [][]string {
	rows := make([][]string, len(d.Documents))
	for i, doc := range d.Documents {
		include := ""
		if doc.Include {
			include = "x"
		}
		bookmark := doc.Bookmark
		if doc.Overridden {
			bookmark += " *"
		}
		rows[i] = []string{strconv.Itoa(doc.Index), include, string(doc.Format), doc.Name, bookmark}
	}
	return rows
}

// ListDocumentsEndpoint handles GET /documents.
type ListDocumentsEndpoint struct{}

func (e *ListDocumentsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/documents", e.handler
}

func (e *ListDocumentsEndpoint) RequiresFolder() bool { return true }

func (e *ListDocumentsEndpoint) Group() string { return "documents" }

// handler godoc
//
//	@Summary		List documents
//	@Description	List the documents of the working folder in pack order. Without q
//	@Description	the stored filter applies; with q the rows matching q are returned.
//	@Tags			documents
//	@Produce		json
//	@Param			q	query		string	false	"Case-insensitive search over every column"
//	@Success		200	{object}	DocumentsResponse
//	@Failure		409	{object}	ErrorResponse
//	@Router			/documents [get]
func (e *ListDocumentsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	set, ok := setOrFail(w, r)
	if !ok {
		return
	}
	resp := DocumentsResponse{Folder: set.Folder(), Counts: set.Counts()}
	if r.URL.Query().Has("q") {
		resp.Filter = r.URL.Query().Get("q")
		resp.Documents = set.Search(resp.Filter)
	} else {
		resp.Filter = set.Filter()
		resp.Documents = set.Rows()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ListDocumentsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the documents of the working folder",
		Long: `List the documents of the working folder in pack order.

Use -q to search every column (include flag, type, filename, titles and
bookmark) case-insensitively. Without -q the server's stored filter applies.
Overridden bookmarks are marked with * in text output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			path := "/documents"
			if cmd.Flags().Changed("query") {
				path += "?q=" + url.QueryEscape(query)
			}
			var resp DocumentsResponse
			if err := client.Get(ctx, path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search text")
	return cmd
}

// CountsEndpoint handles GET /documents/counts.
type CountsEndpoint struct{}

func (e *CountsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/documents/counts", e.handler
}

func (e *CountsEndpoint) RequiresFolder() bool { return true }

func (e *CountsEndpoint) Group() string { return "documents" }

// handler godoc
//
//	@Summary		Count included documents
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	workset.Counts
//	@Router			/documents/counts [get]
func (e *CountsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	set, ok := setOrFail(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, set.Counts())
}

func (e *CountsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Count the included documents per format",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp workset.Counts
			if err := client.Get(ctx, "/documents/counts", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
