package launcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/me/amaos/pkg/model"
)

// ThreadLauncher hands out execution handles for thread-like tasks.
// Thread content is simulated: it runs only when the scheduler rotates it.
type ThreadLauncher struct {
	logger *slog.Logger

	mu   sync.Mutex
	next int
	live map[string]int // ref -> handle
}

// NewThreadLauncher creates a ThreadLauncher whose first handle is 1.
func NewThreadLauncher(logger *slog.Logger) *ThreadLauncher {
	return &ThreadLauncher{
		logger: logger.With("component", "thread-launcher"),
		next:   1,
		live:   make(map[string]int),
	}
}

// Kind returns model.KindThread.
func (l *ThreadLauncher) Kind() model.Kind {
	return model.KindThread
}

// Start allocates a new handle.
func (l *ThreadLauncher) Start(_ context.Context, name string) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h := Handle{ID: l.next, Ref: uuid.NewString()}
	l.next++
	l.live[h.Ref] = h.ID
	l.logger.Debug("thread created", "task", name, "tid", h.ID, "ref", h.Ref)
	return h, nil
}

// ForceStop forgets the handle.
func (l *ThreadLauncher) ForceStop(_ context.Context, task model.Task) error {
	l.mu.Lock()
	delete(l.live, task.Ref)
	l.mu.Unlock()
	return nil
}

// Live returns the number of handles not yet stopped.
func (l *ThreadLauncher) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}
