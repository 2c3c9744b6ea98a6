package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/tlfpack/internal/server"
)

var (
	serveHost   string
	servePort   string
	serveFolder string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tlfpack server",
	Long: `Start the tlfpack HTTP server.

The server keeps the working set of one folder in sync with the disk
(every scan.refresh_interval and on filesystem events), holds the review
state and runs pack and convert jobs in the background. With the gotenberg
converter backend and no converter.gotenberg.url, a Gotenberg container is
started on demand and left running on shutdown.

Use "tlfpack api" commands to drive a running server.

Examples:
  tlfpack serve --folder ./tlfs       # Serve a folder on 127.0.0.1:8390
  tlfpack serve --port 9000           # Start on a custom port
  tlfpack serve --host 0.0.0.0        # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger, err := newLogger(stderr)
		if err != nil {
			return err
		}

		cm, h, err := loadConfig()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		if serveFolder != "" {
			if err := cm.Set("folder", serveFolder); err != nil {
				return err
			}
		}

		// Create server
		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			ConfigManager: cm,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port)")
	serveCmd.Flags().StringVar(&serveFolder, "folder", "", "Folder to serve (default: folder from the config)")

	rootCmd.AddCommand(serveCmd)
}
