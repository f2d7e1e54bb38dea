package launcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/me/amaos/pkg/model"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// containerAPI is the subset of the Docker client the launcher uses.
type containerAPI interface {
	ImagePull(ctx context.Context, ref string, options types.ImagePullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
}

// DockerConfig configures container-backed process tasks.
type DockerConfig struct {
	Image        string   // image every task runs in
	Command      []string // prefix; the task name is appended as the last argument
	Pull         bool     // pull the image before each start
	MemoryMiB    int      // container memory limit; 0 means unlimited
	CPUs         float64  // container CPU limit; 0 means unlimited
	ExposedPorts []string // e.g. "8080/tcp"
}

// DockerLauncher runs process-like tasks as Docker containers.
type DockerLauncher struct {
	api    containerAPI
	config DockerConfig
	logger *slog.Logger

	exposed  nat.PortSet
	bindings nat.PortMap

	mu      sync.Mutex
	started map[string]string // container ID -> task name
}

// NewDockerLauncher creates a DockerLauncher using the Docker environment (DOCKER_HOST etc.).
func NewDockerLauncher(cfg DockerConfig, logger *slog.Logger) (*DockerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return newDockerLauncherWithAPI(cli, cfg, logger)
}

// newDockerLauncherWithAPI is used by tests to inject a fake Docker API.
func newDockerLauncherWithAPI(api containerAPI, cfg DockerConfig, logger *slog.Logger) (*DockerLauncher, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("docker launcher: image is required")
	}
	exposed, bindings, err := nat.ParsePortSpecs(cfg.ExposedPorts)
	if err != nil {
		return nil, fmt.Errorf("docker launcher: ports: %w", err)
	}
	return &DockerLauncher{
		api:      api,
		config:   cfg,
		logger:   logger.With("component", "docker-launcher"),
		exposed:  exposed,
		bindings: bindings,
		started:  make(map[string]string),
	}, nil
}

// Kind returns model.KindProcess.
func (l *DockerLauncher) Kind() model.Kind {
	return model.KindProcess
}

// Start creates and starts a container for the task. The container ID is the Ref.
func (l *DockerLauncher) Start(ctx context.Context, name string) (Handle, error) {
	if l.config.Pull {
		reader, err := l.api.ImagePull(ctx, l.config.Image, types.ImagePullOptions{})
		if err != nil {
			return Handle{}, fmt.Errorf("task %s: pull %s: %w", name, l.config.Image, err)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
	}

	cc := container.Config{
		Image:        l.config.Image,
		Tty:          false,
		Env:          []string{"AMAOS_TASK=" + name},
		ExposedPorts: l.exposed,
		Labels:       map[string]string{"amaos.task": name},
	}
	if len(l.config.Command) > 0 {
		cc.Cmd = append(append([]string{}, l.config.Command...), name)
	}

	hc := container.HostConfig{
		Resources: container.Resources{
			Memory:   int64(l.config.MemoryMiB) << 20,
			NanoCPUs: int64(l.config.CPUs * math.Pow10(9)),
		},
		PortBindings:    l.bindings,
		PublishAllPorts: len(l.exposed) > 0,
	}

	containerName := "amaos-" + strings.ToLower(name) + "-" + uuid.NewString()[:8]
	resp, err := l.api.ContainerCreate(ctx, &cc, &hc, nil, nil, containerName)
	if err != nil {
		return Handle{}, fmt.Errorf("task %s: create container from %s: %w", name, l.config.Image, err)
	}

	if err := l.api.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		// Do not leave a created-but-never-started container behind.
		if rmErr := l.api.ContainerRemove(ctx, resp.ID, types.ContainerRemoveOptions{Force: true}); rmErr != nil {
			l.logger.Warn("remove unstarted container", "container_id", resp.ID, "error", rmErr)
		}
		return Handle{}, fmt.Errorf("task %s: start container %s: %w", name, resp.ID, err)
	}

	l.mu.Lock()
	l.started[resp.ID] = name
	l.mu.Unlock()

	l.logger.Debug("container started", "task", name, "container_id", resp.ID, "container", containerName)
	return Handle{Ref: resp.ID}, nil
}

// ForceStop kills and removes the task's container.
func (l *DockerLauncher) ForceStop(ctx context.Context, task model.Task) error {
	if task.Ref == "" {
		return fmt.Errorf("pid %d: no container reference", task.ID)
	}
	l.logger.Debug("killing container", "pid", task.ID, "container_id", task.Ref)

	if err := l.api.ContainerKill(ctx, task.Ref, "SIGKILL"); err != nil {
		return fmt.Errorf("kill container %s: %w", task.Ref, err)
	}
	if err := l.api.ContainerRemove(ctx, task.Ref, types.ContainerRemoveOptions{RemoveVolumes: true, Force: true}); err != nil {
		return fmt.Errorf("remove container %s: %w", task.Ref, err)
	}

	l.mu.Lock()
	delete(l.started, task.Ref)
	l.mu.Unlock()
	return nil
}

// Live returns the number of containers started and not yet force-stopped.
func (l *DockerLauncher) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.started)
}
