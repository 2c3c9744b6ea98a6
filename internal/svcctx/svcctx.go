// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/tlfpack/internal/config"
	"github.com/jackzampolin/tlfpack/internal/convert"
	"github.com/jackzampolin/tlfpack/internal/home"
	"github.com/jackzampolin/tlfpack/internal/jobs"
	"github.com/jackzampolin/tlfpack/internal/workset"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Config    *config.Manager
	Home      *home.Dir
	Set       *workset.Set
	Runner    *jobs.Runner
	Packer    jobs.Packer
	Converter convert.Converter
	Logger    *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// SetFrom extracts the working set from context.
func SetFrom(ctx context.Context) *workset.Set {
	if s := ServicesFrom(ctx); s != nil {
		return s.Set
	}
	return nil
}

// RunnerFrom extracts the run scheduler from context.
func RunnerFrom(ctx context.Context) *jobs.Runner {
	if s := ServicesFrom(ctx); s != nil {
		return s.Runner
	}
	return nil
}

// PackerFrom extracts the document assembler from context.
func PackerFrom(ctx context.Context) jobs.Packer {
	if s := ServicesFrom(ctx); s != nil {
		return s.Packer
	}
	return nil
}

// ConverterFrom extracts the PDF converter from context.
func ConverterFrom(ctx context.Context) convert.Converter {
	if s := ServicesFrom(ctx); s != nil {
		return s.Converter
	}
	return nil
}

// LoggerFrom extracts the logger from context, falling back to slog.Default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
