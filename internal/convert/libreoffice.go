package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// runFunc runs a command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// LibreOffice converts with a local headless office suite.
type LibreOffice struct {
	binary  string
	timeout time.Duration
	run     runFunc
}

// NewLibreOffice creates a converter calling binary ("soffice" when empty).
func NewLibreOffice(binary string, timeout time.Duration) *LibreOffice {
	if binary == "" {
		binary = "soffice"
	}
	return &LibreOffice{binary: binary, timeout: timeout, run: runCommand}
}

// Convert runs a headless conversion of src into outDir.
func (l *LibreOffice) Convert(ctx context.Context, src, outDir string) (string, error) {
	if err := checkSource(src); err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	out, err := l.run(ctx, l.binary,
		"--headless", "--norestore",
		"--convert-to", "pdf",
		"--outdir", outDir,
		src,
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s timed out: %w", l.binary, ctx.Err())
		}
		return "", fmt.Errorf("%s failed: %w: %s", l.binary, err, strings.TrimSpace(string(out)))
	}

	pdf := filepath.Join(outDir, OutputName(src))
	if _, err := os.Stat(pdf); err != nil {
		return "", fmt.Errorf("%s produced no pdf for %s: %s", l.binary, filepath.Base(src), strings.TrimSpace(string(out)))
	}
	return pdf, nil
}
