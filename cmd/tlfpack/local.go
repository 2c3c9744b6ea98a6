package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tlfpack/internal/api"
	"github.com/jackzampolin/tlfpack/internal/assemble"
	"github.com/jackzampolin/tlfpack/internal/config"
	"github.com/jackzampolin/tlfpack/internal/convert"
	"github.com/jackzampolin/tlfpack/internal/extract"
	"github.com/jackzampolin/tlfpack/internal/home"
	"github.com/jackzampolin/tlfpack/internal/jobs"
	"github.com/jackzampolin/tlfpack/internal/manifest"
	"github.com/jackzampolin/tlfpack/internal/server/endpoints"
	"github.com/jackzampolin/tlfpack/internal/workset"
)

// session is the state of a one-shot command over a folder.
type session struct {
	cfg    *config.Config
	home   *home.Dir
	logger *slog.Logger
	set    *workset.Set
}

// openSession loads the config and scans folder, or the configured folder
// when no argument is given.
func openSession(ctx context.Context, args []string) (*session, error) {
	logger, err := newLogger(stderr)
	if err != nil {
		return nil, err
	}
	cm, h, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg := cm.Get()

	folder := cfg.Folder
	if len(args) > 0 {
		folder = args[0]
	}
	if folder == "" {
		return nil, fmt.Errorf("%w: pass a folder or set folder in the config", workset.ErrNoFolder)
	}

	set := workset.New(extract.New(logger), logger)
	if err := set.SetFolder(folder); err != nil {
		return nil, err
	}
	if _, err := set.Rescan(ctx); err != nil {
		return nil, err
	}
	logger.Debug("folder scanned", "folder", set.Folder(), "documents", set.Len())
	return &session{cfg: cfg, home: h, logger: logger, set: set}, nil
}

// applyManifest restores a review file. Without an explicit path the
// folder's TLF_Bookmarks.yaml is used when present.
func (s *session) applyManifest(path string, explicit bool) error {
	if !explicit {
		path = filepath.Join(s.set.Folder(), manifest.DefaultName)
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}
	rows, err := manifest.ReadFile(path)
	if err != nil {
		return err
	}
	applied, missing := manifest.Apply(s.set, rows)
	s.logger.Info("review table applied", "file", path, "applied", applied, "missing", len(missing))
	for _, k := range missing {
		s.logger.Warn("review row names a missing document", "document", k.String())
	}
	return nil
}

// run executes job in the foreground, printing its log on stderr, and
// returns its result.
func (s *session) run(ctx context.Context, job jobs.Job, key string) (any, error) {
	base := slog.New(slog.NewTextHandler(io.Discard, nil))
	if s.logger.Enabled(ctx, slog.LevelDebug) {
		base = s.logger
	}
	rn := jobs.NewRunner(base)
	run, err := rn.Start(ctx, jobs.RunSpec{Job: job, Key: key})
	if err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			run.Cancel()
		case <-run.Done():
		}
	}()
	for line := range run.Logs() {
		fmt.Fprintln(stderr, line)
	}
	<-run.Done()
	return run.Result(), run.Err()
}

var scanCmd = &cobra.Command{
	Use:   "scan [folder]",
	Short: "List the documents of a folder with their extracted titles",
	Long: `Scan a folder and print every RTF, DOCX and PDF document in pack order with
the bookmark extracted from its header. A TLF_Bookmarks.yaml in the folder
is applied first.

Examples:
  tlfpack scan ./tlfs -o text
  tlfpack scan ./tlfs -o json > review.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, args)
		if err != nil {
			return err
		}
		if err := s.applyManifest("", false); err != nil {
			return err
		}
		return api.Output(endpoints.DocumentsResponse{
			Folder:    s.set.Folder(),
			Documents: s.set.Rows(),
			Counts:    s.set.Counts(),
		})
	},
}

var (
	packName     string
	packTOC      bool
	packNoTOC    bool
	packManifest string
)

var packCmd = &cobra.Command{
	Use:   "pack [folder]",
	Short: "Merge a folder's documents into one bookmarked PDF",
	Long: `Merge the documents of a folder, in order, into one PDF with a bookmark per
document and, unless --no-toc, a linked table of contents in front.

RTF and DOCX documents are converted with the configured converter.
Documents that cannot be read are skipped and reported. Include flags,
bookmarks and order come from --manifest, or from TLF_Bookmarks.yaml in the
folder when present.

Examples:
  tlfpack pack ./tlfs
  tlfpack pack ./tlfs --name CSR_Section14 --no-toc
  tlfpack pack ./tlfs --manifest reviewed.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if packTOC && packNoTOC {
			return errors.New("--toc and --no-toc are mutually exclusive")
		}
		s, err := openSession(ctx, args)
		if err != nil {
			return err
		}
		if err := s.applyManifest(packManifest, cmd.Flags().Changed("manifest")); err != nil {
			return err
		}
		if s.set.Counts().Total == 0 {
			return assemble.ErrNothingToPack
		}

		conv, err := convert.New(ctx, s.cfg.Converter, s.cfg.ConvertTimeout(), s.logger)
		if err != nil {
			return err
		}
		if c, ok := conv.(convert.Closer); ok {
			defer c.Close()
		}
		if err := s.home.EnsureExists(); err != nil {
			return err
		}

		name := s.cfg.Output.Name
		if packName != "" {
			name = packName
		}
		toc := s.cfg.Output.TOC
		switch {
		case packTOC:
			toc = true
		case packNoTOC:
			toc = false
		}
		out := assemble.OutputPath(s.set.Folder(), name, time.Now())

		res, err := s.run(ctx, &jobs.PackJob{
			Set:      s.set,
			Packer:   assemble.New(conv, s.logger),
			Home:     s.home,
			Output:   out,
			TOC:      toc,
			Geometry: s.cfg.Geometry(),
		}, out)
		if err != nil {
			return err
		}
		return api.Output(res)
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert [folder]",
	Short: "Convert a folder's RTF and DOCX documents to PDFs next to them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, args)
		if err != nil {
			return err
		}
		if err := s.applyManifest("", false); err != nil {
			return err
		}
		conv, err := convert.New(ctx, s.cfg.Converter, s.cfg.ConvertTimeout(), s.logger)
		if err != nil {
			return err
		}
		if c, ok := conv.(convert.Closer); ok {
			defer c.Close()
		}

		res, err := s.run(ctx, &jobs.ConvertJob{Set: s.set, Converter: conv}, s.set.Folder())
		if err != nil {
			return err
		}
		return api.Output(res)
	},
}

var exportFile string

var exportCmd = &cobra.Command{
	Use:   "export [folder]",
	Short: "Write the review table of a folder to TLF_Bookmarks.yaml",
	Long: `Write every document of the folder with its include flag, titles, bookmark
and order to a review file. Edit the file and pass it to pack --manifest, or
leave it in the folder as TLF_Bookmarks.yaml to have it applied
automatically. A .json file name writes JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, args)
		if err != nil {
			return err
		}
		path := exportFile
		if path == "" {
			path = filepath.Join(s.set.Folder(), manifest.DefaultName)
			// Keep the edits of an existing review file.
			if err := s.applyManifest("", false); err != nil {
				return err
			}
		}
		rows := manifest.Rows(s.set.Documents())
		if err := manifest.WriteFile(path, rows); err != nil {
			return err
		}
		return api.Output(endpoints.SaveManifestResponse{Path: path, Rows: len(rows)})
	},
}

func init() {
	packCmd.Flags().StringVar(&packName, "name", "", "Output file name (default: output.name or TLFs_Merged_<timestamp>.pdf)")
	packCmd.Flags().BoolVar(&packTOC, "toc", false, "Prepend a table of contents")
	packCmd.Flags().BoolVar(&packNoTOC, "no-toc", false, "Do not prepend a table of contents")
	packCmd.Flags().StringVar(&packManifest, "manifest", "", "Review file to apply before packing")

	exportCmd.Flags().StringVarP(&exportFile, "file", "f", "", "Output file (default: <folder>/TLF_Bookmarks.yaml)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(exportCmd)
}
