package main

import (
	"net"

	"github.com/jackzampolin/tlfpack/internal/api"
	"github.com/jackzampolin/tlfpack/internal/config"
	"github.com/jackzampolin/tlfpack/internal/server/endpoints"
)

var serverURL string

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	registry := api.NewRegistry()
	for _, ep := range endpoints.All() {
		registry.Register(ep)
	}
	apiCmd := registry.BuildCommands(getServerURL)

	d := config.DefaultConfig()
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://"+net.JoinHostPort(d.Server.Host, d.Server.Port), "Server URL",
	)

	rootCmd.AddCommand(apiCmd)
}
