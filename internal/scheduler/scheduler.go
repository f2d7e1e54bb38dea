// Package scheduler rotates thread-like tasks through the ready queue on a fixed period.
package scheduler

import (
	"context"

	"github.com/me/amaos/pkg/model"
)

// Scheduler drives periodic round-robin rotation.
type Scheduler interface {
	// Start begins the scheduling loop. Blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the scheduler.
	Stop() error

	// Tick runs a single scheduling iteration. Used for testing.
	Tick(ctx context.Context) error

	// State reports StateNotStarted, StateRunning or StateStopped.
	State() string
}

// Rotator performs one rotation step of the ready queue under its lock.
// It reports the thread-like task moved to the tail, if any.
type Rotator interface {
	Rotate(ctx context.Context) (model.Task, bool)
}
