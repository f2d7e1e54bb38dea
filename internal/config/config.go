// Package config holds amaos configuration: built-in defaults, optionally
// overlaid by a YAML file, then by command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Process launcher backends.
const (
	LauncherExec   = "exec"
	LauncherDocker = "docker"
)

// Config is the complete amaos configuration.
type Config struct {
	Resources ResourceConfig  `yaml:"resources"`
	Queue     QueueConfig     `yaml:"queue"`
	Task      TaskConfig      `yaml:"task"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Launcher  LauncherConfig  `yaml:"launcher"`
	Journal   JournalConfig   `yaml:"journal"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// ResourceConfig is the machine capacity. Amounts are MiB.
type ResourceConfig struct {
	RAM     int `yaml:"ram"`
	Storage int `yaml:"storage"`
	Cores   int `yaml:"cores"`
}

// QueueConfig bounds the ready queue.
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// TaskConfig is the fixed reservation made for every task.
type TaskConfig struct {
	RAM     int `yaml:"ram"`
	Storage int `yaml:"storage"`
}

// SchedulerConfig controls the rotation loop.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LauncherConfig selects how process-like tasks are started.
type LauncherConfig struct {
	Process     string        `yaml:"process"`   // exec or docker
	TasksDir    string        `yaml:"tasks_dir"` // exec: directory holding task executables
	StopTimeout time.Duration `yaml:"stop_timeout"`
	Docker      DockerConfig  `yaml:"docker"`
}

// DockerConfig configures the docker process launcher.
type DockerConfig struct {
	Image   string   `yaml:"image"`
	Command []string `yaml:"command"`
	Pull    bool     `yaml:"pull"`
	CPUs    float64  `yaml:"cpus"`
	Ports   []string `yaml:"ports"`
}

// JournalConfig enables the SQLite event journal. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds the HTTP operator API settings. An empty Addr disables it.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Resources: ResourceConfig{RAM: 2048, Storage: 256000, Cores: 8},
		Queue:     QueueConfig{Capacity: 50},
		Task:      TaskConfig{RAM: 100, Storage: 50},
		Scheduler: SchedulerConfig{Interval: 2 * time.Second},
		Launcher: LauncherConfig{
			Process:     LauncherExec,
			TasksDir:    "./tasks",
			StopTimeout: 5 * time.Second,
			Docker:      DockerConfig{Image: "alpine:3.20"},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := cfg.Decode(bytes.NewReader(data)); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode overlays YAML from r onto c. Unknown keys are rejected.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return c.Validate()
}

// Validate checks the configuration for values the system cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Resources.RAM < 0 || c.Resources.Storage < 0 || c.Resources.Cores < 0 {
		errs = append(errs, errors.New("resources: amounts must be non-negative"))
	}
	if c.Queue.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("queue.capacity must be positive, got %d", c.Queue.Capacity))
	}
	if c.Task.RAM < 0 || c.Task.Storage < 0 {
		errs = append(errs, errors.New("task: cost must be non-negative"))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.interval must be positive, got %s", c.Scheduler.Interval))
	}
	switch c.Launcher.Process {
	case LauncherExec:
	case LauncherDocker:
		if c.Launcher.Docker.Image == "" {
			errs = append(errs, errors.New("launcher.docker.image is required for the docker launcher"))
		}
	default:
		errs = append(errs, fmt.Errorf("launcher.process must be %q or %q, got %q", LauncherExec, LauncherDocker, c.Launcher.Process))
	}
	return errors.Join(errs...)
}
