package convert

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackzampolin/tlfpack/internal/config"
)

const gotenbergRoute = "/forms/libreoffice/convert"

// Gotenberg converts through a Gotenberg server's LibreOffice route.
type Gotenberg struct {
	baseURL string
	http    *http.Client
	docker  *gotenbergContainer
}

// NewGotenberg connects to cfg.URL, or starts the managed container when no
// URL is configured.
func NewGotenberg(ctx context.Context, cfg config.GotenbergCfg, timeout time.Duration, logger *slog.Logger) (*Gotenberg, error) {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	g := &Gotenberg{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	if g.baseURL != "" {
		return g, nil
	}

	dm, err := newGotenbergContainer(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("starting gotenberg container", "image", dm.image, "url", dm.URL())
	if err := dm.Start(ctx); err != nil {
		dm.Close()
		return nil, fmt.Errorf("failed to start gotenberg: %w", err)
	}
	g.baseURL = dm.URL()
	g.docker = dm
	return g, nil
}

// NewGotenbergClient returns a converter for the server at baseURL.
func NewGotenbergClient(baseURL string, httpClient *http.Client) *Gotenberg {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Gotenberg{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// URL returns the server address.
func (g *Gotenberg) URL() string { return g.baseURL }

// Close releases the Docker client. The container keeps running for the
// next conversion batch.
func (g *Gotenberg) Close() error {
	if g.docker != nil {
		return g.docker.Close()
	}
	return nil
}

// Convert uploads src and writes the returned PDF into outDir.
func (g *Gotenberg) Convert(ctx context.Context, src, outDir string) (string, error) {
	if err := checkSource(src); err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	body, contentType, err := multipartFile(src)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+gotenbergRoute, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gotenberg request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gotenberg returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	out := filepath.Join(outDir, OutputName(src))
	f, err := os.Create(out)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(out)
		return "", fmt.Errorf("failed to write pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return out, nil
}

// multipartFile streams src as the "files" form field.
func multipartFile(src string) (io.Reader, string, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, "", err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer f.Close()
		part, err := mw.CreateFormFile("files", filepath.Base(src))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType(), nil
}
