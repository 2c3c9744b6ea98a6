package convert

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/jackzampolin/tlfpack/internal/config"
)

const (
	gotenbergPort  = "3000/tcp"
	gotenbergLabel = "tlfpack-gotenberg"
)

// dockerAPI is the part of the Docker client the Gotenberg container needs.
type dockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	Close() error
}

// gotenbergContainer runs Gotenberg in a local container bound to
// 127.0.0.1. The container is reused across runs and left running on exit.
type gotenbergContainer struct {
	api         dockerAPI
	name        string
	image       string
	port        string
	readyWithin time.Duration
}

func newGotenbergContainer(cfg config.GotenbergCfg) (*gotenbergContainer, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return containerFor(cli, cfg), nil
}

func containerFor(api dockerAPI, cfg config.GotenbergCfg) *gotenbergContainer {
	c := &gotenbergContainer{
		api:         api,
		name:        cfg.ContainerName,
		image:       cfg.Image,
		port:        cfg.Port,
		readyWithin: 60 * time.Second,
	}
	if c.name == "" {
		c.name = "tlfpack-gotenberg"
	}
	if c.image == "" {
		c.image = "gotenberg/gotenberg:8"
	}
	if c.port == "" {
		c.port = "3900"
	}
	return c
}

// URL returns the address the container answers on.
func (c *gotenbergContainer) URL() string {
	return "http://localhost:" + c.port
}

// Close releases the Docker client.
func (c *gotenbergContainer) Close() error {
	return c.api.Close()
}

// Start brings the container up, creating it when missing, and waits until
// Gotenberg reports healthy.
func (c *gotenbergContainer) Start(ctx context.Context) error {
	id, state, err := c.find(ctx)
	if err != nil {
		return err
	}
	switch state {
	case "":
		if id, err = c.create(ctx); err != nil {
			return err
		}
		if err := c.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
			_ = c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
			return fmt.Errorf("failed to start container: %w", err)
		}
	case "running", "restarting":
		// up already
	default:
		if err := c.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
			return fmt.Errorf("failed to start existing container: %w", err)
		}
	}
	return waitHealthy(ctx, c.URL(), c.readyWithin)
}

// find returns the ID and state of the named container; state is empty
// when there is none.
func (c *gotenbergContainer) find(ctx context.Context) (id, state string, err error) {
	args := filters.NewArgs()
	args.Add("name", c.name)
	found, err := c.api.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return "", "", fmt.Errorf("docker is not available: %w", err)
	}
	// The name filter matches substrings.
	for _, s := range found {
		for _, n := range s.Names {
			if n == "/"+c.name || n == c.name {
				return s.ID, s.State, nil
			}
		}
	}
	return "", "", nil
}

func (c *gotenbergContainer) create(ctx context.Context) (string, error) {
	if _, err := c.api.ImageInspect(ctx, c.image); err != nil {
		rc, err := c.api.ImagePull(ctx, c.image, image.PullOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to pull image %s: %w", c.image, err)
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to pull image %s: %w", c.image, err)
		}
	}

	resp, err := c.api.ContainerCreate(ctx,
		&container.Config{
			Image:        c.image,
			Labels:       map[string]string{gotenbergLabel: "true"},
			ExposedPorts: nat.PortSet{gotenbergPort: struct{}{}},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				gotenbergPort: {{HostIP: "127.0.0.1", HostPort: c.port}},
			},
		},
		nil, nil, c.name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return resp.ID, nil
}

// waitHealthy polls baseURL/health once a second until it answers 200.
func waitHealthy(ctx context.Context, baseURL string, timeout time.Duration) error {
	httpClient := &http.Client{Timeout: 2 * time.Second}
	url := baseURL + "/health"

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("gotenberg unhealthy: status %d", resp.StatusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(max(timeout.Seconds(), 1))),
		retry.Delay(time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}
