// Package launcher starts and force-stops the executable content behind a task.
// The kernel treats every launcher as opaque: it only sees success or failure
// and a handle.
package launcher

import (
	"context"

	"github.com/me/amaos/pkg/model"
)

// Handle identifies launched content.
type Handle struct {
	// ID is an opaque numeric handle. Thread launchers fill it in; process
	// launchers leave it zero because the kernel assigns simulated PIDs.
	ID int
	// Ref is what ForceStop needs to find the content again.
	Ref string
}

// Launcher is a pluggable backend that runs task content.
type Launcher interface {
	// Kind returns the task kind this launcher serves.
	Kind() model.Kind

	// Start begins running the named task's content and returns its handle.
	Start(ctx context.Context, name string) (Handle, error)

	// ForceStop is a best-effort request to stop a task's content.
	// It does not wait for the content to exit.
	ForceStop(ctx context.Context, task model.Task) error
}

// Counter is implemented by launchers that track the content they started.
type Counter interface {
	// Live returns how much started content has not been stopped or exited.
	Live() int
}
