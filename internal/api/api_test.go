package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

type fakeEndpoint struct {
	method, path, use, group string
	folder                   bool
}

func (e fakeEndpoint) Route() (string, string, http.HandlerFunc) {
	return e.method, e.path, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":""}`)
	}
}

func (e fakeEndpoint) RequiresFolder() bool { return e.folder }

func (e fakeEndpoint) Command(func() string) *cobra.Command {
	return &cobra.Command{Use: e.use}
}

func (e fakeEndpoint) Group() string { return e.group }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(fakeEndpoint{method: "GET", path: "/health", use: "health"})
	r.Register(fakeEndpoint{method: "GET", path: "/documents", use: "list", group: "documents", folder: true})
	r.Register(fakeEndpoint{method: "GET", path: "/runs", use: "list", group: "runs"})
	r.Register(fakeEndpoint{method: "POST", path: "/documents/sort", use: "sort", group: "documents", folder: true})

	t.Run("commands", func(t *testing.T) {
		root := r.BuildCommands(func() string { return "" })
		var got []string
		for _, c := range root.Commands() {
			got = append(got, c.Name())
			for _, sub := range c.Commands() {
				got = append(got, c.Name()+" "+sub.Name())
			}
		}
		slices.Sort(got)
		want := []string{"documents", "documents list", "documents sort", "health", "runs", "runs list"}
		if !slices.Equal(got, want) {
			t.Errorf("commands = %q, want %q", got, want)
		}
	})

	t.Run("routes", func(t *testing.T) {
		mux := http.NewServeMux()
		var wrapped []string
		r.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc {
			return func(w http.ResponseWriter, req *http.Request) {
				wrapped = append(wrapped, req.URL.Path)
				next(w, req)
			}
		})
		for _, path := range []string{"/health", "/documents", "/runs"} {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("GET %s = %d", path, rec.Code)
			}
		}
		if !slices.Equal(wrapped, []string{"/documents"}) {
			t.Errorf("folder middleware ran for %q", wrapped)
		}
	})
}

type table [][]string

func (t table) Header() []string { return []string{"#", "FILENAME"} }
func (t table) Rows() [][]string { return t }

func TestOutputTo(t *testing.T) {
	tests := []struct {
		name   string
		format OutputFormat
		data   any
		want   string
	}{
		{"json", OutputFormatJSON, map[string]int{"total": 2}, "{\n  \"total\": 2\n}\n"},
		{"yaml", OutputFormatYAML, map[string]int{"total": 2}, "total: 2\n"},
		{"text table", OutputFormatText, table{{"0", "t_14_1.rtf"}, {"1", "l_16_1.pdf"}},
			"#  FILENAME\n0  t_14_1.rtf\n1  l_16_1.pdf\n"},
		{"text falls back to yaml", OutputFormatText, map[string]int{"total": 2}, "total: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := OutputTo(&buf, tt.format, tt.data); err != nil {
				t.Fatalf("OutputTo: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}

	if err := OutputTo(&bytes.Buffer{}, "xml", nil); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestClient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			fmt.Fprint(w, `{"status":"ok"}`)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"run not found"}`)
		case "/log":
			fmt.Fprint(w, "level=INFO msg=processing n=1\nlevel=INFO msg=\"run completed\"\n")
		}
	}))
	defer ts.Close()
	c := NewClient(ts.URL)
	ctx := context.Background()

	var resp struct{ Status string }
	if err := c.Get(ctx, "/ok", &resp); err != nil || resp.Status != "ok" {
		t.Errorf("Get = %+v, %v", resp, err)
	}
	if err := c.Post(ctx, "/missing", nil, nil); err == nil || !strings.Contains(err.Error(), "server error (404): run not found") {
		t.Errorf("Post error = %v", err)
	}

	var lines []string
	if err := c.Stream(ctx, "/log", func(l string) { lines = append(lines, l) }); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if len(lines) != 2 || lines[1] != `level=INFO msg="run completed"` {
		t.Errorf("lines = %q", lines)
	}
}
