// Package convert turns editable TLF documents (RTF, DOCX) into PDF.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/tlfpack/internal/config"
	"github.com/jackzampolin/tlfpack/internal/extract"
)

// ErrUnsupportedFormat is returned for sources that need no conversion or
// cannot be converted.
var ErrUnsupportedFormat = errors.New("unsupported source format")

// Backend names.
const (
	BackendLibreOffice = "libreoffice"
	BackendGotenberg   = "gotenberg"
)

// Converter converts one document into a PDF inside outDir and returns the
// path of the PDF.
type Converter interface {
	Convert(ctx context.Context, src, outDir string) (string, error)
}

// Closer is implemented by converters holding resources.
type Closer interface {
	Close() error
}

// New builds the converter selected by cfg, wrapped with retries.
func New(ctx context.Context, cfg config.ConverterCfg, timeout time.Duration, logger *slog.Logger) (Converter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		base Converter
		err  error
	)
	switch strings.ToLower(cfg.Backend) {
	case "", BackendLibreOffice:
		base = NewLibreOffice(cfg.LibreOffice.Binary, timeout)
	case BackendGotenberg:
		base, err = NewGotenberg(ctx, cfg.Gotenberg, timeout, logger)
	default:
		return nil, fmt.Errorf("unknown converter backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return WithRetry(base, cfg.Retries, logger), nil
}

// OutputName is the PDF name a converted src gets.
func OutputName(src string) string {
	base := filepath.Base(src)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".pdf"
}

func checkSource(src string) error {
	format, ok := extract.DetectFormat(src)
	if !ok || !format.NeedsConversion() {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(src))
	}
	return nil
}

// retrying retries a converter on failure.
type retrying struct {
	next     Converter
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

// WithRetry retries failed conversions up to retries more times.
// Unsupported sources and cancellation are not retried.
func WithRetry(c Converter, retries int, logger *slog.Logger) Converter {
	if retries <= 0 {
		return c
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retrying{next: c, attempts: uint(retries) + 1, delay: time.Second, logger: logger}
}

func (r *retrying) Convert(ctx context.Context, src, outDir string) (string, error) {
	return retry.DoWithData(
		func() (string, error) {
			return r.next.Convert(ctx, src, outDir)
		},
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrUnsupportedFormat) && ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			r.logger.Warn("conversion failed, retrying", "file", filepath.Base(src), "attempt", n+1, "error", err)
		}),
	)
}

// Close releases the wrapped converter's resources.
func (r *retrying) Close() error {
	if c, ok := r.next.(Closer); ok {
		return c.Close()
	}
	return nil
}
