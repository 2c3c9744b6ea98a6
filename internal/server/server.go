// Package server runs the tlfpack HTTP API over one working folder.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackzampolin/tlfpack/internal/api"
	"github.com/jackzampolin/tlfpack/internal/assemble"
	"github.com/jackzampolin/tlfpack/internal/config"
	"github.com/jackzampolin/tlfpack/internal/convert"
	"github.com/jackzampolin/tlfpack/internal/extract"
	"github.com/jackzampolin/tlfpack/internal/home"
	"github.com/jackzampolin/tlfpack/internal/jobs"
	"github.com/jackzampolin/tlfpack/internal/server/endpoints"
	"github.com/jackzampolin/tlfpack/internal/svcctx"
	"github.com/jackzampolin/tlfpack/internal/workset"
)

// Server is the main tlfpack HTTP server.
// It owns the working set, keeps it in sync with the folder and runs pack
// and convert jobs in the background.
type Server struct {
	httpServer *http.Server
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	set       *workset.Set
	runner    *jobs.Runner
	converter convert.Converter
	ownsConv  bool

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu       sync.RWMutex
	services *svcctx.Services
	running  bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: server.host from the config)
	Host string
	// Port is the port to listen on (default: server.port from the config)
	Port string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home holds per-run scratch directories
	Home *home.Dir
	// Logger is the structured logger to use
	Logger *slog.Logger
	// Converter replaces the converter built from the config.
	Converter convert.Converter
	// Extractor replaces the title extractor.
	Extractor workset.Extractor
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	defaults := config.DefaultConfig()
	if cfg.ConfigManager != nil {
		defaults = cfg.ConfigManager.Get()
	}
	if cfg.Host == "" {
		cfg.Host = defaults.Server.Host
	}
	if cfg.Port == "" {
		cfg.Port = defaults.Server.Port
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extract.New(cfg.Logger)
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
		set:       workset.New(cfg.Extractor, cfg.Logger),
		runner:    jobs.NewRunner(cfg.Logger),
		converter: cfg.Converter,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireFolder)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// config returns the live configuration.
func (s *Server) config() *config.Config {
	if s.configMgr != nil {
		return s.configMgr.Get()
	}
	return config.DefaultConfig()
}

// init builds the converter and assembler, opens the configured folder and
// publishes the services to the handlers.
func (s *Server) init(ctx context.Context) error {
	cfg := s.config()
	if s.converter == nil {
		s.logger.Info("initializing converter", "backend", cfg.Converter.Backend)
		conv, err := convert.New(ctx, cfg.Converter, cfg.ConvertTimeout(), s.logger)
		if err != nil {
			return fmt.Errorf("failed to create converter: %w", err)
		}
		s.converter = conv
		s.ownsConv = true
	}

	services := &svcctx.Services{
		Config:    s.configMgr,
		Home:      s.home,
		Set:       s.set,
		Runner:    s.runner,
		Packer:    assemble.New(s.converter, s.logger),
		Converter: s.converter,
		Logger:    s.logger,
	}
	s.mu.Lock()
	s.services = services
	s.mu.Unlock()

	if cfg.Folder != "" {
		s.openFolder(ctx, cfg.Folder)
	}
	if s.configMgr != nil {
		s.configMgr.OnChange(func(c *config.Config) {
			if c.Folder == "" {
				return
			}
			if abs, err := filepath.Abs(c.Folder); err == nil && abs == s.set.Folder() {
				return
			}
			s.logger.Info("folder changed in config", "folder", c.Folder)
			s.openFolder(ctx, c.Folder)
		})
	}
	return nil
}

// openFolder switches the working set to folder and scans it. Failures are
// logged; the server keeps running without a folder.
func (s *Server) openFolder(ctx context.Context, folder string) {
	if err := s.set.SetFolder(folder); err != nil {
		s.logger.Warn("cannot open folder", "folder", folder, "error", err)
		return
	}
	if _, err := s.set.Rescan(ctx); err != nil {
		s.logger.Warn("initial scan failed", "folder", s.set.Folder(), "error", err)
		return
	}
	s.logger.Info("folder selected", "folder", s.set.Folder(), "documents", s.set.Len())
}

// Start starts the server.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.init(ctx); err != nil {
		s.setNotRunning()
		return err
	}

	if s.configMgr != nil && s.configMgr.ConfigFile() != "" {
		s.configMgr.WatchConfig()
	}

	// Keep the working set in sync with the folder
	cfg := s.config()
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		opts := workset.WatchOptions{Interval: cfg.RefreshInterval(), Notify: cfg.Scan.Watch}
		if err := s.set.Watch(watchCtx, opts); err != nil {
			s.logger.Warn("folder watcher stopped", "error", err)
		}
	}()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			stopWatch()
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	stopWatch()
	return s.shutdown()
}

// shutdown stops the HTTP server, cancels active runs and releases the
// converter.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := s.runner.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("runs did not stop in time", "error", err)
	}

	if c, ok := s.converter.(convert.Closer); ok && s.ownsConv {
		if err := c.Close(); err != nil {
			s.logger.Error("converter close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Set returns the working set.
func (s *Server) Set() *workset.Set {
	return s.set
}

// Runner returns the run scheduler.
func (s *Server) Runner() *jobs.Runner {
	return s.runner
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.mu.RLock()
		services := s.services
		s.mu.RUnlock()
		if services != nil {
			ctx = svcctx.WithServices(ctx, services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireFolder is middleware that rejects requests until a folder is
// selected. Returns 409 Conflict otherwise.
func (s *Server) requireFolder(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.set.Folder() == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"no folder selected; run tlfpack api scan <folder>"}`))
			return
		}
		next(w, r)
	}
}
