package convert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/tlfpack/internal/config"
)

func writeSource(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(`{\rtf1 Table 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestOutputName(t *testing.T) {
	tests := map[string]string{
		"/data/t_14_1_1.rtf": "t_14_1_1.pdf",
		"l_16.2.1.DOCX":      "l_16.2.1.pdf",
		"/x/y/no_extension":  "no_extension.pdf",
	}
	for in, want := range tests {
		if got := OutputName(in); got != want {
			t.Errorf("OutputName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLibreOffice_Convert(t *testing.T) {
	src := writeSource(t, "t_1.rtf")
	outDir := filepath.Join(t.TempDir(), "out")

	var gotArgs []string
	lo := NewLibreOffice("", time.Minute)
	lo.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return nil, os.WriteFile(filepath.Join(outDir, "t_1.pdf"), []byte("%PDF-1.4"), 0o644)
	}

	out, err := lo.Convert(context.Background(), src, outDir)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if out != filepath.Join(outDir, "t_1.pdf") {
		t.Errorf("out = %q", out)
	}
	want := []string{"soffice", "--headless", "--norestore", "--convert-to", "pdf", "--outdir", outDir, src}
	if !slices.Equal(gotArgs, want) {
		t.Errorf("args = %q, want %q", gotArgs, want)
	}
}

func TestLibreOffice_Errors(t *testing.T) {
	outDir := t.TempDir()

	t.Run("command fails", func(t *testing.T) {
		lo := NewLibreOffice("soffice", time.Minute)
		lo.run = func(context.Context, string, ...string) ([]byte, error) {
			return []byte("Error: source file could not be loaded\n"), errors.New("exit status 1")
		}
		_, err := lo.Convert(context.Background(), writeSource(t, "a.docx"), outDir)
		if err == nil || !strings.Contains(err.Error(), "could not be loaded") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("no pdf produced", func(t *testing.T) {
		lo := NewLibreOffice("soffice", time.Minute)
		lo.run = func(context.Context, string, ...string) ([]byte, error) { return nil, nil }
		if _, err := lo.Convert(context.Background(), writeSource(t, "b.rtf"), outDir); err == nil {
			t.Error("expected error when no pdf is written")
		}
	})

	t.Run("unsupported source", func(t *testing.T) {
		lo := NewLibreOffice("soffice", time.Minute)
		lo.run = func(context.Context, string, ...string) ([]byte, error) {
			t.Error("command should not run")
			return nil, nil
		}
		_, err := lo.Convert(context.Background(), "report.pdf", outDir)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("err = %v, want ErrUnsupportedFormat", err)
		}
	})
}

func TestGotenberg_Convert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != gotenbergRoute {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		f, hdr, err := r.FormFile("files")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename == "broken.docx" {
			http.Error(w, "LibreOffice failed to process a document", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, "%PDF-1.7 converted "+hdr.Filename+" "+string(data))
	}))
	defer srv.Close()

	g := NewGotenbergClient(srv.URL+"/", srv.Client())
	outDir := filepath.Join(t.TempDir(), "converted")

	t.Run("ok", func(t *testing.T) {
		out, err := g.Convert(context.Background(), writeSource(t, "t_2.rtf"), outDir)
		if err != nil {
			t.Fatalf("Convert: %v", err)
		}
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Base(out) != "t_2.pdf" || !strings.HasPrefix(string(data), "%PDF-1.7 converted t_2.rtf") {
			t.Errorf("out = %q, data = %q", out, data)
		}
	})

	t.Run("server error", func(t *testing.T) {
		_, err := g.Convert(context.Background(), writeSource(t, "broken.docx"), outDir)
		if err == nil || !strings.Contains(err.Error(), "400") {
			t.Errorf("err = %v", err)
		}
	})
}

type flaky struct {
	failures int
	calls    int
	err      error
}

func (f *flaky) Convert(context.Context, string, string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", f.err
	}
	return "out.pdf", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry(c Converter, retries int) Converter {
	r := WithRetry(c, retries, nil)
	if rr, ok := r.(*retrying); ok {
		rr.delay = time.Millisecond
		rr.logger = discardLogger()
	}
	return r
}

func TestWithRetry(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		f := &flaky{failures: 2, err: errors.New("soffice crashed")}
		out, err := fastRetry(f, 2).Convert(context.Background(), "a.rtf", "")
		if err != nil || out != "out.pdf" || f.calls != 3 {
			t.Errorf("out=%q err=%v calls=%d", out, err, f.calls)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		f := &flaky{failures: 5, err: errors.New("soffice crashed")}
		_, err := fastRetry(f, 1).Convert(context.Background(), "a.rtf", "")
		if err == nil || f.calls != 2 {
			t.Errorf("err=%v calls=%d", err, f.calls)
		}
	})

	t.Run("unsupported is final", func(t *testing.T) {
		f := &flaky{failures: 5, err: ErrUnsupportedFormat}
		_, err := fastRetry(f, 3).Convert(context.Background(), "a.pdf", "")
		if !errors.Is(err, ErrUnsupportedFormat) || f.calls != 1 {
			t.Errorf("err=%v calls=%d", err, f.calls)
		}
	})

	t.Run("zero retries is passthrough", func(t *testing.T) {
		f := &flaky{}
		if c := WithRetry(f, 0, nil); c != Converter(f) {
			t.Errorf("expected the converter itself, got %T", c)
		}
	})
}

func TestNew(t *testing.T) {
	cfg := config.DefaultConfig().Converter

	c, err := New(context.Background(), cfg, time.Minute, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r, ok := c.(*retrying)
	if !ok {
		t.Fatalf("expected retrying converter, got %T", c)
	}
	if _, ok := r.next.(*LibreOffice); !ok || r.attempts != 3 {
		t.Errorf("next = %T, attempts = %d", r.next, r.attempts)
	}

	cfg.Backend = "gotenberg"
	cfg.Gotenberg.URL = "http://127.0.0.1:3000"
	c, err = New(context.Background(), cfg, time.Minute, nil)
	if err != nil {
		t.Fatalf("New gotenberg: %v", err)
	}
	if g, ok := c.(*retrying).next.(*Gotenberg); !ok || g.URL() != "http://127.0.0.1:3000" {
		t.Errorf("unexpected converter %#v", c)
	}

	cfg.Backend = "word"
	if _, err := New(context.Background(), cfg, time.Minute, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}
