package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tlfpack/internal/api"
	"github.com/jackzampolin/tlfpack/internal/svcctx"
	"github.com/jackzampolin/tlfpack/internal/workset"
)

// ScanRequest optionally switches the working folder before scanning.
type ScanRequest struct {
	Folder string `json:"folder,omitempty"`
}

// ScanResponse reports what the scan changed.
type ScanResponse struct {
	Folder    string       `json:"folder" yaml:"folder"`
	Documents int          `json:"documents" yaml:"documents"`
	Changes   workset.Diff `json:"changes" yaml:"changes"`
}

// ScanEndpoint handles POST /scan.
type ScanEndpoint struct{}

func (e *ScanEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/scan", e.handler
}

// RequiresFolder is false: a scan may choose the folder.
func (e *ScanEndpoint) RequiresFolder() bool { return false }

// handler godoc
//
//	@Summary		Rescan the working folder
//	@Description	Pick up added, removed and changed documents. With folder set, switch
//	@Description	to that folder first, dropping all review state.
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ScanRequest	false	"Folder"
//	@Success		200		{object}	ScanResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/scan [post]
func (e *ScanEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	set, ok := setOrFail(w, r)
	if !ok {
		return
	}
	var req ScanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Folder != "" {
		if err := set.SetFolder(req.Folder); errors.Is(err, workset.ErrBusy) {
			writeErr(w, err)
			return
		} else if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		svcctx.LoggerFrom(r.Context()).Info("folder selected", "folder", set.Folder())
	}

	diff, err := set.Rescan(r.Context())
	if err != nil {
		if errors.Is(err, workset.ErrNoFolder) {
			writeErr(w, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ScanResponse{Folder: set.Folder(), Documents: set.Len(), Changes: diff})
}

func (e *ScanEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [folder]",
		Short: "Rescan the working folder, optionally switching to another one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var req ScanRequest
			if len(args) == 1 {
				folder, err := absPath(args[0])
				if err != nil {
					return err
				}
				req.Folder = folder
			}
			client := api.NewClient(getServerURL())
			var resp ScanResponse
			if err := client.Post(ctx, "/scan", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
