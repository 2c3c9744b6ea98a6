package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/jackzampolin/tlfpack/internal/assemble"
	"github.com/jackzampolin/tlfpack/internal/config"
	"github.com/jackzampolin/tlfpack/internal/jobs"
	"github.com/jackzampolin/tlfpack/internal/manifest"
	"github.com/jackzampolin/tlfpack/internal/svcctx"
	"github.com/jackzampolin/tlfpack/internal/workset"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeErr maps err to a status code and writes it.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, workset.ErrNotFound), errors.Is(err, jobs.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, workset.ErrNoFolder), errors.Is(err, workset.ErrBusy),
		errors.Is(err, jobs.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, assemble.ErrNothingToPack), errors.Is(err, jobs.ErrNothingToConvert),
		errors.Is(err, manifest.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes an optional JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// pathIndex parses the {index} path value.
func pathIndex(r *http.Request) (int, error) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		return 0, fmt.Errorf("invalid document index %q", r.PathValue("index"))
	}
	return i, nil
}

// currentConfig returns the live configuration or the defaults.
func currentConfig(r *http.Request) *config.Config {
	if cm := svcctx.ConfigFrom(r.Context()); cm != nil {
		return cm.Get()
	}
	return config.DefaultConfig()
}

// setOrFail returns the working set, writing a 503 when the server is not
// initialized.
func setOrFail(w http.ResponseWriter, r *http.Request) (*workset.Set, bool) {
	set := svcctx.SetFrom(r.Context())
	if set == nil {
		writeError(w, http.StatusServiceUnavailable, "working set not initialized")
		return nil, false
	}
	return set, true
}

func runnerOrFail(w http.ResponseWriter, r *http.Request) (*jobs.Runner, bool) {
	rn := svcctx.RunnerFrom(r.Context())
	if rn == nil {
		writeError(w, http.StatusServiceUnavailable, "runner not initialized")
		return nil, false
	}
	return rn, true
}

func errMutuallyExclusive(a, b string) error {
	return fmt.Errorf("%s and %s are mutually exclusive", a, b)
}
