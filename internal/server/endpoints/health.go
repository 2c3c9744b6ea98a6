package endpoints

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tlfpack/internal/api"
	"github.com/jackzampolin/tlfpack/internal/svcctx"
	"github.com/jackzampolin/tlfpack/version"
)

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status" yaml:"status"`
	Version   string `json:"version" yaml:"version"`
	Folder    string `json:"folder,omitempty" yaml:"folder,omitempty"`
	Documents int    `json:"documents" yaml:"documents"`
	Converter string `json:"converter" yaml:"converter"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresFolder() bool { return false }

// handler godoc
//
//	@Summary		Health check
//	@Description	Report server status, the working folder and the converter backend
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   version.GitRelease,
		Converter: currentConfig(r).Converter.Backend,
	}
	if set := svcctx.SetFrom(r.Context()); set != nil {
		resp.Folder = set.Folder()
		resp.Documents = set.Len()
	}
	if svcctx.PackerFrom(r.Context()) == nil {
		resp.Status = "starting"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(ctx, "/health", &resp); err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(resp)
			}
			fmt.Printf("Status:    %s\n", resp.Status)
			fmt.Printf("Version:   %s\n", resp.Version)
			fmt.Printf("Folder:    %s\n", resp.Folder)
			fmt.Printf("Documents: %d\n", resp.Documents)
			fmt.Printf("Converter: %s\n", resp.Converter)
			return nil
		},
	}
}
