package endpoints

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tlfpack/internal/api"
	"github.com/jackzampolin/tlfpack/internal/workset"
)

// UpdateDocumentRequest changes one document. Nil fields are left alone.
type UpdateDocumentRequest struct {
	Include  *bool   `json:"include,omitempty"`
	Toggle   bool    `json:"toggle,omitempty"`
	Bookmark *string `json:"bookmark,omitempty"`
}

// UpdateDocumentEndpoint handles PATCH /documents/{index}.
type UpdateDocumentEndpoint struct{}

func (e *UpdateDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/documents/{index}", e.handler
}

func (e *UpdateDocumentEndpoint) RequiresFolder() bool { return true }

func (e *UpdateDocumentEndpoint) Group() string { return "documents" }

// handler godoc
//
//	@Summary		Update a document
//	@Description	Set or toggle the include flag and override the bookmark. An empty
//	@Description	bookmark restores the extracted one.
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			index	path		int						true	"Document index"
//	@Param			request	body		UpdateDocumentRequest	true	"Changes"
//	@Success		200		{object}	workset.Row
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/documents/{index} [patch]
func (e *UpdateDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	set, ok := setOrFail(w, r)
	if !ok {
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req UpdateDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Include != nil && req.Toggle {
		writeError(w, http.StatusBadRequest, "include and toggle are mutually exclusive")
		return
	}

	doc, err := set.Get(index)
	switch {
	case err != nil:
	case req.Include != nil:
		doc, err = set.SetInclude(index, *req.Include)
	case req.Toggle:
		doc, err = set.ToggleInclude(index)
	}
	if err == nil && req.Bookmark != nil {
		doc, err = set.SetBookmark(index, *req.Bookmark)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workset.Row{Index: index, Document: doc})
}

func (e *UpdateDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		include, exclude, toggle, reset bool
		bookmark                        string
	)
	cmd := &cobra.Command{
		Use:   "update <index>",
		Short: "Include, exclude or rename a document",
		Long: `Change one document of the working set.

Examples:
  tlfpack api documents update 3 --exclude
  tlfpack api documents update 3 --bookmark "Table 14.1.1 Demographics"
  tlfpack api documents update 3 --reset-bookmark`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := strconv.Atoi(args[0]); err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			var req UpdateDocumentRequest
			switch {
			case include && exclude:
				return errMutuallyExclusive("--include", "--exclude")
			case include:
				req.Include = &include
			case exclude:
				no := false
				req.Include = &no
			}
			req.Toggle = toggle
			if cmd.Flags().Changed("bookmark") {
				req.Bookmark = &bookmark
			}
			if reset {
				empty := ""
				req.Bookmark = &empty
			}
			client := api.NewClient(getServerURL())
			var resp workset.Row
			if err := client.Patch(ctx, "/documents/"+args[0], req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&include, "include", false, "Include the document in the package")
	cmd.Flags().BoolVar(&exclude, "exclude", false, "Leave the document out of the package")
	cmd.Flags().BoolVar(&toggle, "toggle", false, "Flip the include flag")
	cmd.Flags().StringVar(&bookmark, "bookmark", "", "Bookmark override")
	cmd.Flags().BoolVar(&reset, "reset-bookmark", false, "Restore the extracted bookmark")
	return cmd
}

// MoveDocumentRequest moves a document one step or to a position.
type MoveDocumentRequest struct {
	// Delta is -1 to move up or 1 to move down.
	Delta    int  `json:"delta,omitempty"`
	Position *int `json:"position,omitempty"`
}

// MoveDocumentResponse reports the document's new index.
type MoveDocumentResponse struct {
	From int `json:"from" yaml:"from"`
	To   int `json:"to" yaml:"to"`
}

// MoveDocumentEndpoint handles POST /documents/{index}/move.
type MoveDocumentEndpoint struct{}

func (e *MoveDocumentEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/documents/{index}/move", e.handler
}

func (e *MoveDocumentEndpoint) RequiresFolder() bool { return true }

func (e *MoveDocumentEndpoint) Group() string { return "documents" }

// handler godoc
//
//	@Summary		Move a document
//	@Description	Swap a document with its neighbour (delta -1 or 1) or move it to a position
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			index	path		int					true	"Document index"
//	@Param			request	body		MoveDocumentRequest	true	"Move"
//	@Success		200		{object}	MoveDocumentResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/documents/{index}/move [post]
func (e *MoveDocumentEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	set, ok := setOrFail(w, r)
	if !ok {
		return
	}
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req MoveDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var to int
	if req.Position != nil {
		to, err = set.MoveTo(index, *req.Position)
	} else {
		to, err = set.Move(index, req.Delta)
	}
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MoveDocumentResponse{From: index, To: to})
}

func (e *MoveDocumentEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		up, down bool
		position int
	)
	cmd := &cobra.Command{
		Use:   "move <index>",
		Short: "Move a document up, down or to a position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := strconv.Atoi(args[0]); err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}
			var req MoveDocumentRequest
			switch {
			case cmd.Flags().Changed("to"):
				req.Position = &position
			case up && !down:
				req.Delta = -1
			case down && !up:
				req.Delta = 1
			default:
				return fmt.Errorf("exactly one of --up, --down or --to is required")
			}
			client := api.NewClient(getServerURL())
			var resp MoveDocumentResponse
			if err := client.Post(ctx, "/documents/"+args[0]+"/move", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&up, "up", false, "Swap with the previous document")
	cmd.Flags().BoolVar(&down, "down", false, "Swap with the next document")
	cmd.Flags().IntVar(&position, "to", 0, "Move to this index")
	return cmd
}
