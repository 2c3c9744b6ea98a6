package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tlfpack/internal/api"
	"github.com/jackzampolin/tlfpack/internal/config"
	"github.com/jackzampolin/tlfpack/internal/home"
	"github.com/jackzampolin/tlfpack/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "tlfpack",
	Short: "Pack clinical TLF documents into one bookmarked PDF",
	Long: `tlfpack merges a folder of clinical Tables, Listings and Figures (RTF, DOCX
and PDF) into a single PDF with one bookmark per document and an optional
linked table of contents.

Titles are read from each document's header and composed into bookmarks;
documents are ordered by their table/listing/figure number. The review
(include flags, bookmark overrides, order) can be exported to
TLF_Bookmarks.yaml, edited and applied again.

Run one-shot commands (scan, pack, convert, export) against a folder, or
start the server (serve) and drive it with the api commands.`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.tlfpack/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "tlfpack home directory (default: ~/.tlfpack)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml, json or text",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

// parseLevel maps --log-level to a slog level.
func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// newLogger returns a text logger on w at the --log-level level.
func newLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// loadConfig resolves the home directory and loads the configuration. The
// home config file is used when --config is not given and it exists.
func loadConfig() (*config.Manager, *home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	file := cfgFile
	if file == "" && h.ConfigExists() {
		file = h.ConfigPath()
	}
	cm, err := config.NewManager(file)
	if err != nil {
		return nil, nil, err
	}
	return cm, h, nil
}

// stderr is where logs and run progress go, keeping stdout for results.
var stderr io.Writer = os.Stderr
