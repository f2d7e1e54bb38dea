package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the period between rotations.
const DefaultInterval = 2 * time.Second

// Loop states.
const (
	StateNotStarted = "not_started"
	StateRunning    = "running"
	StateStopped    = "stopped"
)

// Config holds scheduler configuration.
type Config struct {
	Interval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval}
}

// Loop implements the Scheduler interface with a ticker-driven rotation loop.
type Loop struct {
	rotator Rotator
	gate    *Semaphore
	config  Config
	logger  *slog.Logger

	running  atomic.Bool
	stopOnce sync.Once
	started  chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLoop creates a new scheduler loop rotating through r.
func NewLoop(r Rotator, cfg Config, logger *slog.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Loop{
		rotator: r,
		gate:    NewSemaphore(1),
		config:  cfg,
		logger:  logger.With("component", "scheduler"),
		started: make(chan struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the scheduling loop. Blocks until ctx is cancelled or Stop is called.
// A Loop can be started once.
func (l *Loop) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("scheduler already started")
	}
	close(l.started)
	defer close(l.doneCh)

	l.logger.Info("scheduler started", "interval", l.config.Interval)
	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopping (context cancelled)")
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("scheduler stopping (stop called)")
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				l.logger.Error("tick error", "error", err)
			}
		}
	}
}

// Stop shuts down the loop and waits for the current tick to finish.
// Stopping a loop that was never started returns immediately.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	select {
	case <-l.started:
		<-l.doneCh
	default:
	}
	return nil
}

// State reports whether Start is currently looping. A loop whose Start has
// returned is stopped for good.
func (l *Loop) State() string {
	select {
	case <-l.doneCh:
		return StateStopped
	default:
	}
	if l.running.Load() {
		return StateRunning
	}
	return StateNotStarted
}

// Tick runs one rotation under the CPU gate.
// Rotating an empty queue or one headed by a process is not an error.
func (l *Loop) Tick(ctx context.Context) error {
	if !l.gate.Acquire(ctx) {
		return fmt.Errorf("acquire cpu gate: %w", ctx.Err())
	}
	defer l.gate.Release()

	if t, ok := l.rotator.Rotate(ctx); ok {
		l.logger.Debug("thread slice", "tid", t.ID, "name", t.Name)
	}
	return nil
}
