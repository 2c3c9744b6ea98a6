package endpoints

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tlfpack/internal/api"
	"github.com/jackzampolin/tlfpack/internal/assemble"
	"github.com/jackzampolin/tlfpack/internal/jobs"
	"github.com/jackzampolin/tlfpack/internal/svcctx"
)

// PackRequest starts a pack run. Empty fields fall back to the config.
type PackRequest struct {
	// Name is the output file name, relative to the folder unless absolute.
	Name string `json:"name,omitempty"`
	TOC  *bool  `json:"toc,omitempty"`
}

// PackEndpoint handles POST /pack.
type PackEndpoint struct{}

func (e *PackEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/pack", e.handler
}

func (e *PackEndpoint) RequiresFolder() bool { return true }

// handler godoc
//
//	@Summary		Pack the included documents
//	@Description	Start a run that merges the included documents, in order, into one
//	@Description	bookmarked PDF with an optional linked table of contents. The
//	@Description	output never overwrites an existing file.
//	@Tags			runs
//	@Accept			json
//	@Produce		json
//	@Param			request	body		PackRequest	false	"Output options"
//	@Success		202		{object}	jobs.Record
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/pack [post]
func (e *PackEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	set, ok := setOrFail(w, r)
	if !ok {
		return
	}
	rn, ok := runnerOrFail(w, r)
	if !ok {
		return
	}
	packer := svcctx.PackerFrom(r.Context())
	if packer == nil {
		writeError(w, http.StatusServiceUnavailable, "assembler not initialized")
		return
	}
	var req PackRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if set.Counts().Total == 0 {
		writeErr(w, assemble.ErrNothingToPack)
		return
	}

	cfg := currentConfig(r)
	name := cfg.Output.Name
	if req.Name != "" {
		name = req.Name
	}
	toc := cfg.Output.TOC
	if req.TOC != nil {
		toc = *req.TOC
	}
	out := assemble.OutputPath(set.Folder(), name, time.Now())

	run, err := rn.Start(r.Context(), jobs.RunSpec{
		Job: &jobs.PackJob{
			Set:      set,
			Packer:   packer,
			Home:     svcctx.HomeFrom(r.Context()),
			Output:   out,
			TOC:      toc,
			Geometry: cfg.Geometry(),
		},
		Key: out,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run.Record())
}

func (e *PackEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		name       string
		toc, noTOC bool
		detach     bool
	)
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Merge the included documents into one bookmarked PDF",
		Long: `Start a pack run on the server and follow its log.

The output is written into the working folder as TLFs_Merged_<timestamp>.pdf
unless --name is given. An existing file is never overwritten; _v2, _v3, ...
is appended instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var req PackRequest
			req.Name = name
			switch {
			case toc && noTOC:
				return errMutuallyExclusive("--toc", "--no-toc")
			case toc:
				req.TOC = &toc
			case noTOC:
				off := false
				req.TOC = &off
			}
			client := api.NewClient(getServerURL())
			var rec jobs.Record
			if err := client.Post(ctx, "/pack", req, &rec); err != nil {
				return err
			}
			if detach {
				return api.Output(rec)
			}
			return followRun(ctx, client, rec.ID)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Output file name")
	cmd.Flags().BoolVar(&toc, "toc", false, "Prepend a table of contents")
	cmd.Flags().BoolVar(&noTOC, "no-toc", false, "Do not prepend a table of contents")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Print the run and return without following it")
	return cmd
}

// ConvertEndpoint handles POST /convert.
type ConvertEndpoint struct{}

func (e *ConvertEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/convert", e.handler
}

func (e *ConvertEndpoint) RequiresFolder() bool { return true }

// handler godoc
//
//	@Summary		Convert the included RTF and DOCX documents to PDF
//	@Description	Start a run writing a PDF next to every included RTF and DOCX document
//	@Tags			runs
//	@Produce		json
//	@Success		202	{object}	jobs.Record
//	@Failure		400	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/convert [post]
func (e *ConvertEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	set, ok := setOrFail(w, r)
	if !ok {
		return
	}
	rn, ok := runnerOrFail(w, r)
	if !ok {
		return
	}
	conv := svcctx.ConverterFrom(r.Context())
	if conv == nil {
		writeError(w, http.StatusServiceUnavailable, "converter not initialized")
		return
	}
	if c := set.Counts(); c.RTF+c.DOCX == 0 {
		writeErr(w, jobs.ErrNothingToConvert)
		return
	}

	run, err := rn.Start(r.Context(), jobs.RunSpec{
		Job: &jobs.ConvertJob{Set: set, Converter: conv},
		Key: set.Folder(),
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run.Record())
}

func (e *ConvertEndpoint) Command(getServerURL func() string) *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert the included RTF and DOCX documents to PDFs next to them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var rec jobs.Record
			if err := client.Post(ctx, "/convert", nil, &rec); err != nil {
				return err
			}
			if detach {
				return api.Output(rec)
			}
			return followRun(ctx, client, rec.ID)
		},
	}
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "Print the run and return without following it")
	return cmd
}
