package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tlfpack/internal/api"
	"github.com/jackzampolin/tlfpack/internal/workset"
)

// SelectAllResponse reports the include value applied to the visible rows.
type SelectAllResponse struct {
	Include bool `json:"include" yaml:"include"`
	Changed int  `json:"changed" yaml:"changed"`
}

// SelectAllEndpoint handles POST /documents/select-all.
type SelectAllEndpoint struct{}

func (e *SelectAllEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/documents/select-all", e.handler
}

func (e *SelectAllEndpoint) RequiresFolder() bool { return true }

func (e *SelectAllEndpoint) Group() string { return "documents" }

// handler godoc
//
//	@Summary		Select or deselect all visible documents
//	@Description	Alternates between including and excluding every document matching
//	@Description	the stored filter.
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	SelectAllResponse
//	@Router			/documents/select-all [post]
func (e *SelectAllEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	set, ok := setOrFail(w, r)
	if !ok {
		return
	}
	include, n := set.SelectAll()
	writeJSON(w, http.StatusOK, SelectAllResponse{Include: include, Changed: n})
}

func (e *SelectAllEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "select-all",
		Short: "Toggle the include flag of every visible document",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp SelectAllResponse
			if err := client.Post(ctx, "/documents/select-all", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// SortRequest selects the sort column and direction.
type SortRequest struct {
	Column string            `json:"column"`
	Order  workset.SortOrder `json:"order,omitempty"`
}

// SortResponse reports the sort applied.
type SortResponse struct {
	Column string            `json:"column" yaml:"column"`
	Order  workset.SortOrder `json:"order" yaml:"order"`
}

// SortEndpoint handles POST /documents/sort.
type SortEndpoint struct{}

func (e *SortEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/documents/sort", e.handler
}

func (e *SortEndpoint) RequiresFolder() bool { return true }

func (e *SortEndpoint) Group() string { return "documents" }

// handler godoc
//
//	@Summary		Sort documents
//	@Description	Reorder the working set by a column. Order defaults to toggle: the
//	@Description	same column flips direction, a new column sorts ascending.
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SortRequest	true	"Sort"
//	@Success		200		{object}	SortResponse
//	@Failure		400		{object}	ErrorResponse
//	@Router			/documents/sort [post]
func (e *SortEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	set, ok := setOrFail(w, r)
	if !ok {
		return
	}
	var req SortRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	col, err := workset.ParseColumn(req.Column)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Order == "" {
		req.Order = workset.Toggle
	}
	order, err := set.SortBy(col, req.Order)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SortResponse{Column: col.String(), Order: order})
}

func (e *SortEndpoint) Command(getServerURL func() string) *cobra.Command {
	var order string
	cmd := &cobra.Command{
		Use:   "sort <column>",
		Short: "Sort documents by a column",
		Long: `Sort the working set by one of: include, type, filename, title1,
title2, title3, bookmark.

Bookmarks sort by their table/listing/figure number; the other text columns
sort case-insensitively. Without --order, sorting the same column again
reverses it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp SortResponse
			req := SortRequest{Column: args[0], Order: workset.SortOrder(order)}
			if err := client.Post(ctx, "/documents/sort", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&order, "order", "", "asc, desc or toggle")
	return cmd
}

// FilterRequest sets the stored search text.
type FilterRequest struct {
	Query string `json:"query" yaml:"query"`
}

// FilterEndpoint handles POST /documents/filter.
type FilterEndpoint struct{}

func (e *FilterEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/documents/filter", e.handler
}

func (e *FilterEndpoint) RequiresFolder() bool { return true }

func (e *FilterEndpoint) Group() string { return "documents" }

// handler godoc
//
//	@Summary		Set the filter
//	@Description	Store the search text that list and select-all apply to
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			request	body		FilterRequest	true	"Filter"
//	@Success		200		{object}	DocumentsResponse
//	@Router			/documents/filter [post]
func (e *FilterEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	set, ok := setOrFail(w, r)
	if !ok {
		return
	}
	var req FilterRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	set.SetFilter(req.Query)
	writeJSON(w, http.StatusOK, DocumentsResponse{
		Folder:    set.Folder(),
		Filter:    set.Filter(),
		Documents: set.Rows(),
		Counts:    set.Counts(),
	})
}

func (e *FilterEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "filter [query]",
		Short: "Set the search text for list and select-all (empty clears it)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var req FilterRequest
			if len(args) == 1 {
				req.Query = args[0]
			}
			client := api.NewClient(getServerURL())
			var resp DocumentsResponse
			if err := client.Post(ctx, "/documents/filter", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
