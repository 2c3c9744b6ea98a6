package endpoints

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tlfpack/internal/api"
	"github.com/jackzampolin/tlfpack/internal/jobs"
)

// ListRunsResponse lists recent runs, newest first.
type ListRunsResponse struct {
	Runs []jobs.Record `json:"runs" yaml:"runs"`
}

// Header implements api.Table.
func (l ListRunsResponse) Header() []string {
	return []string{"ID", "TYPE", "STATUS", "CREATED", "OUTPUT"}
}

// Rows implements api.Table.
func (l ListRunsResponse) Rows() [][]string {
	rows := make([][]string, len(l.Runs))
	for i, r := range l.Runs {
		rows[i] = []string{r.ID, r.JobType, string(r.Status), r.CreatedAt.Local().Format(time.DateTime), r.Key}
	}
	return rows
}

// ListRunsEndpoint handles GET /runs.
type ListRunsEndpoint struct{}

func (e *ListRunsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/runs", e.handler
}

func (e *ListRunsEndpoint) RequiresFolder() bool { return false }

func (e *ListRunsEndpoint) Group() string { return "runs" }

// handler godoc
//
//	@Summary		List runs
//	@Tags			runs
//	@Produce		json
//	@Success		200	{object}	ListRunsResponse
//	@Router			/runs [get]
func (e *ListRunsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	rn, ok := runnerOrFail(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ListRunsResponse{Runs: rn.List()})
}

func (e *ListRunsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recent pack and convert runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp ListRunsResponse
			if err := client.Get(ctx, "/runs", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetRunEndpoint handles GET /runs/{id}.
type GetRunEndpoint struct{}

func (e *GetRunEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/runs/{id}", e.handler
}

func (e *GetRunEndpoint) RequiresFolder() bool { return false }

func (e *GetRunEndpoint) Group() string { return "runs" }

// handler godoc
//
//	@Summary		Get run by ID
//	@Description	Get a run including its result and buffered log
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	jobs.Record
//	@Failure		404	{object}	ErrorResponse
//	@Router			/runs/{id} [get]
func (e *GetRunEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	rn, ok := runnerOrFail(w, r)
	if !ok {
		return
	}
	run, err := rn.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run.Record())
}

func (e *GetRunEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a run by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp jobs.Record
			if err := client.Get(ctx, "/runs/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// RunLogEndpoint handles GET /runs/{id}/log.
type RunLogEndpoint struct{}

func (e *RunLogEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/runs/{id}/log", e.handler
}

func (e *RunLogEndpoint) RequiresFolder() bool { return false }

func (e *RunLogEndpoint) Group() string { return "runs" }

// handler godoc
//
//	@Summary		Stream a run's log
//	@Description	Plain text, one line per log record, from the first line on. The
//	@Description	response stays open until the run finishes unless follow=false.
//	@Tags			runs
//	@Produce		plain
//	@Param			id		path		string	true	"Run ID"
//	@Param			follow	query		bool	false	"Keep streaming until the run finishes (default true)"
//	@Success		200		{string}	string
//	@Failure		404		{object}	ErrorResponse
//	@Router			/runs/{id}/log [get]
func (e *RunLogEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	rn, ok := runnerOrFail(w, r)
	if !ok {
		return
	}
	run, err := rn.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if r.URL.Query().Get("follow") == "false" {
		w.WriteHeader(http.StatusOK)
		for _, line := range run.Record().Log {
			fmt.Fprintln(w, line)
		}
		return
	}

	rc := http.NewResponseController(w)
	// The server's write timeout would cut long runs short.
	_ = rc.SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()
	for line := range run.Follow(r.Context()) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return
		}
		_ = rc.Flush()
	}
}

func (e *RunLogEndpoint) Command(getServerURL func() string) *cobra.Command {
	var noFollow bool
	cmd := &cobra.Command{
		Use:   "log <id>",
		Short: "Print a run's log, following it until the run finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			if noFollow {
				return client.Stream(ctx, "/runs/"+args[0]+"/log?follow=false", printLine)
			}
			return followRun(ctx, client, args[0])
		},
	}
	cmd.Flags().BoolVar(&noFollow, "no-follow", false, "Print the lines so far and exit")
	return cmd
}

// CancelRunEndpoint handles POST /runs/{id}/cancel.
type CancelRunEndpoint struct{}

func (e *CancelRunEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/runs/{id}/cancel", e.handler
}

func (e *CancelRunEndpoint) RequiresFolder() bool { return false }

func (e *CancelRunEndpoint) Group() string { return "runs" }

// handler godoc
//
//	@Summary		Cancel a run
//	@Description	Ask a run to stop and wait briefly for it to finish
//	@Tags			runs
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	jobs.Record
//	@Failure		404	{object}	ErrorResponse
//	@Router			/runs/{id}/cancel [post]
func (e *CancelRunEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	rn, ok := runnerOrFail(w, r)
	if !ok {
		return
	}
	run, err := rn.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	run.Cancel()
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	_ = run.Wait(ctx)
	writeJSON(w, http.StatusOK, run.Record())
}

func (e *CancelRunEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp jobs.Record
			if err := client.Post(ctx, "/runs/"+args[0]+"/cancel", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

func printLine(line string) { fmt.Println(line) }

// followRun streams the log of run id and fails when the run did not
// complete.
func followRun(ctx context.Context, client *api.Client, id string) error {
	if err := client.Stream(ctx, "/runs/"+id+"/log", printLine); err != nil {
		return err
	}
	var rec jobs.Record
	if err := client.Get(ctx, "/runs/"+id, &rec); err != nil {
		return err
	}
	if rec.Status != jobs.StatusCompleted {
		if rec.Error != "" {
			return fmt.Errorf("run %s %s: %s", id, rec.Status, rec.Error)
		}
		return fmt.Errorf("run %s %s", id, rec.Status)
	}
	return nil
}

// absPath resolves a path given on the command line so the server, which
// may run in another directory, sees the same file.
func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", p, err)
	}
	return abs, nil
}
