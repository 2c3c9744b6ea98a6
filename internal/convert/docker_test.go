package convert

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/jackzampolin/tlfpack/internal/config"
)

type fakeDocker struct {
	containers []container.Summary
	listErr    error
	haveImage  bool
	startErr   error

	calls   []string
	created *container.HostConfig
}

func (f *fakeDocker) ContainerList(_ context.Context, _ container.ListOptions) ([]container.Summary, error) {
	f.calls = append(f.calls, "list")
	return f.containers, f.listErr
}

func (f *fakeDocker) ContainerCreate(_ context.Context, _ *container.Config, hc *container.HostConfig,
	_ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.calls = append(f.calls, "create "+name)
	f.created = hc
	return container.CreateResponse{ID: "new"}, nil
}

func (f *fakeDocker) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.calls = append(f.calls, "start "+id)
	return f.startErr
}

func (f *fakeDocker) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	f.calls = append(f.calls, "remove "+id)
	return nil
}

func (f *fakeDocker) ImageInspect(_ context.Context, ref string, _ ...client.ImageInspectOption) (image.InspectResponse, error) {
	f.calls = append(f.calls, "inspect "+ref)
	if !f.haveImage {
		return image.InspectResponse{}, errors.New("no such image")
	}
	return image.InspectResponse{}, nil
}

func (f *fakeDocker) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.calls = append(f.calls, "pull "+ref)
	return io.NopCloser(strings.NewReader(`{"status":"done"}`)), nil
}

func (f *fakeDocker) Close() error { return nil }

// healthServer answers /health with 503 for the first failures requests.
func healthServer(t *testing.T, failures int32) (port string, hits *atomic.Int32) {
	t.Helper()
	hits = &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		if hits.Add(1) <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return u.Port(), hits
}

func TestGotenbergContainer_Start(t *testing.T) {
	named := func(state string, names ...string) container.Summary {
		return container.Summary{ID: "c-" + state, State: state, Names: names}
	}

	tests := []struct {
		name  string
		fake  *fakeDocker
		calls []string
	}{
		{
			name:  "missing container is pulled and created",
			fake:  &fakeDocker{},
			calls: []string{"list", "inspect gotenberg/gotenberg:8", "pull gotenberg/gotenberg:8", "create tlfpack-gotenberg", "start new"},
		},
		{
			name:  "local image is not pulled",
			fake:  &fakeDocker{haveImage: true},
			calls: []string{"list", "inspect gotenberg/gotenberg:8", "create tlfpack-gotenberg", "start new"},
		},
		{
			name:  "stopped container is restarted",
			fake:  &fakeDocker{containers: []container.Summary{named("exited", "/tlfpack-gotenberg")}},
			calls: []string{"list", "start c-exited"},
		},
		{
			name:  "running container is reused",
			fake:  &fakeDocker{containers: []container.Summary{named("running", "/tlfpack-gotenberg")}},
			calls: []string{"list"},
		},
		{
			name:  "similar names are ignored",
			fake:  &fakeDocker{haveImage: true, containers: []container.Summary{named("running", "/tlfpack-gotenberg-old")}},
			calls: []string{"list", "inspect gotenberg/gotenberg:8", "create tlfpack-gotenberg", "start new"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, _ := healthServer(t, 0)
			c := containerFor(tt.fake, config.GotenbergCfg{Port: port})
			c.readyWithin = 2 * time.Second

			if err := c.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			if !slices.Equal(tt.fake.calls, tt.calls) {
				t.Errorf("calls = %q, want %q", tt.fake.calls, tt.calls)
			}
		})
	}
}

func TestGotenbergContainer_BindsLoopback(t *testing.T) {
	port, _ := healthServer(t, 0)
	fake := &fakeDocker{haveImage: true}
	c := containerFor(fake, config.GotenbergCfg{Port: port, ContainerName: "tlf-conv"})
	c.readyWithin = 2 * time.Second

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.URL() != "http://localhost:"+port {
		t.Errorf("URL = %q", c.URL())
	}
	if !slices.Contains(fake.calls, "create tlf-conv") {
		t.Errorf("calls = %q", fake.calls)
	}
	binding := fake.created.PortBindings[gotenbergPort]
	if len(binding) != 1 || binding[0].HostIP != "127.0.0.1" || binding[0].HostPort != port {
		t.Errorf("port bindings = %+v", fake.created.PortBindings)
	}
}

func TestGotenbergContainer_Failures(t *testing.T) {
	t.Run("docker unavailable", func(t *testing.T) {
		fake := &fakeDocker{listErr: errors.New("cannot connect to the docker daemon")}
		err := containerFor(fake, config.GotenbergCfg{}).Start(context.Background())
		if err == nil || !strings.Contains(err.Error(), "docker is not available") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("failed start removes the new container", func(t *testing.T) {
		fake := &fakeDocker{haveImage: true, startErr: errors.New("port is already allocated")}
		err := containerFor(fake, config.GotenbergCfg{}).Start(context.Background())
		if err == nil {
			t.Fatal("expected error")
		}
		if fake.calls[len(fake.calls)-1] != "remove new" {
			t.Errorf("calls = %q", fake.calls)
		}
	})
}

func TestWaitHealthy(t *testing.T) {
	t.Run("retries until healthy", func(t *testing.T) {
		port, hits := healthServer(t, 1)
		if err := waitHealthy(context.Background(), "http://127.0.0.1:"+port, 5*time.Second); err != nil {
			t.Fatal(err)
		}
		if hits.Load() != 2 {
			t.Errorf("hits = %d, want 2", hits.Load())
		}
	})

	t.Run("gives up after timeout", func(t *testing.T) {
		port, _ := healthServer(t, 100)
		err := waitHealthy(context.Background(), "http://127.0.0.1:"+port, time.Second)
		if err == nil || !strings.Contains(err.Error(), "status 503") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("stops on cancel", func(t *testing.T) {
		port, _ := healthServer(t, 100)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := waitHealthy(ctx, "http://127.0.0.1:"+port, 30*time.Second); err == nil {
			t.Error("expected error")
		}
	})
}
