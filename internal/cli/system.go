package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/me/amaos/internal/config"
	"github.com/me/amaos/internal/kernel"
	"github.com/me/amaos/internal/launcher"
	"github.com/me/amaos/internal/metrics"
	"github.com/me/amaos/internal/queue"
	"github.com/me/amaos/internal/resource"
	"github.com/me/amaos/internal/scheduler"
	"github.com/me/amaos/internal/server"
	"github.com/me/amaos/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// system is one wired scheduler: kernel, rotation loop and the optional
// journal and metrics around them.
type system struct {
	kernel  *kernel.Kernel
	loop    *scheduler.Loop
	store   *store.SQLiteStore // nil when the journal is disabled
	metrics *prometheus.Registry
	logger  *slog.Logger
}

// newSystem wires every component described by c.
func newSystem(ctx context.Context, c config.Config, logger *slog.Logger) (*system, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	pool, err := resource.NewPool(c.Resources.RAM, c.Resources.Storage, c.Resources.Cores)
	if err != nil {
		return nil, err
	}
	q, err := queue.NewReady(c.Queue.Capacity)
	if err != nil {
		return nil, err
	}

	reg := launcher.NewRegistry(logger)
	switch c.Launcher.Process {
	case config.LauncherDocker:
		dl, err := launcher.NewDockerLauncher(launcher.DockerConfig{
			Image:        c.Launcher.Docker.Image,
			Command:      c.Launcher.Docker.Command,
			Pull:         c.Launcher.Docker.Pull,
			MemoryMiB:    c.Task.RAM,
			CPUs:         c.Launcher.Docker.CPUs,
			ExposedPorts: c.Launcher.Docker.Ports,
		}, logger)
		if err != nil {
			return nil, err
		}
		reg.Register(dl)
	default:
		reg.Register(launcher.NewExecLauncher(c.Launcher.TasksDir, logger))
	}
	reg.Register(launcher.NewThreadLauncher(logger))

	s := &system{metrics: prometheus.NewRegistry(), logger: logger}
	s.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var opts []kernel.Option
	if c.Journal.Path != "" {
		st, err := openStore(ctx, c.Journal.Path, logger)
		if err != nil {
			return nil, err
		}
		s.store = st
		opts = append(opts, kernel.WithRecorder(st))
	}

	// The exporter samples the kernel, so it is attached after construction.
	exp := &lateExporter{}
	opts = append(opts, kernel.WithRecorder(exp))

	s.kernel = kernel.New(pool, q, reg, kernel.Config{
		TaskRAM:     c.Task.RAM,
		TaskStorage: c.Task.Storage,
		StopTimeout: c.Launcher.StopTimeout,
	}, logger, opts...)

	if exp.Exporter, err = metrics.NewExporter("amaos", s.metrics, s.kernel); err != nil {
		s.Close()
		return nil, err
	}

	s.loop = scheduler.NewLoop(s.kernel, scheduler.Config{Interval: c.Scheduler.Interval}, logger)
	return s, nil
}

// lateExporter lets the kernel hold a recorder whose exporter is created after it.
type lateExporter struct {
	*metrics.Exporter
}

// openStore opens and migrates the journal, creating its directory if needed.
func openStore(ctx context.Context, path string, logger *slog.Logger) (*store.SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	logger.Info("journal ready", "path", path)
	return st, nil
}

// server builds the HTTP operator API over the system.
func (s *system) server() *server.Server {
	opts := []server.Option{server.WithGatherer(s.metrics)}
	if s.store != nil {
		opts = append(opts, server.WithStore(s.store))
	}
	return server.New(s.kernel, s.loop, s.logger, opts...)
}

// Close releases the journal. Tasks are shut down by the commands.
func (s *system) Close() error {
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}
