package scheduler

import "context"

// Semaphore is a counting semaphore. The scheduler uses a single-permit one
// as the CPU admission gate around each rotation.
type Semaphore struct {
	ch chan struct{}
}

// NewSemaphore creates a semaphore with the given number of permits.
// If n <= 0, returns nil (unlimited).
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		return nil
	}
	return &Semaphore{ch: make(chan struct{}, n)}
}

// Acquire blocks until a permit is available or ctx is cancelled.
// Returns true if acquired. A nil semaphore always acquires.
func (s *Semaphore) Acquire(ctx context.Context) bool {
	if s == nil {
		return true
	}
	select {
	case s.ch <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Release returns a permit. No-op on a nil semaphore.
func (s *Semaphore) Release() {
	if s == nil {
		return
	}
	<-s.ch
}
