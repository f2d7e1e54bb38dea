// Package queue holds the ready queue of admitted tasks.
package queue

import (
	"fmt"
	"sync"

	"github.com/golang-collections/collections/queue"
	"github.com/me/amaos/pkg/model"
)

// DefaultCapacity is the maximum number of admitted tasks.
const DefaultCapacity = 50

// Ready is the ordered, bounded ready queue. Every operation, including the
// scheduler's rotation, runs under the same mutex.
//
// Operations that need positional access cycle the whole FIFO once: each entry
// is dequeued and either dropped or re-enqueued, which keeps relative order.
type Ready struct {
	mu       sync.Mutex
	fifo     *queue.Queue
	capacity int
}

// NewReady creates an empty queue holding at most capacity tasks.
func NewReady(capacity int) (*Ready, error) {
	if capacity <= 0 {
		return nil, model.NewError(model.CodeValidation, fmt.Sprintf("queue capacity must be positive, got %d", capacity))
	}
	return &Ready{fifo: queue.New(), capacity: capacity}, nil
}

// Append inserts t at the tail, or fails with ErrQueueFull.
func (r *Ready) Append(t model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fifo.Len() >= r.capacity {
		return model.NewError(model.CodeQueueFull, fmt.Sprintf("ready queue is full (capacity %d)", r.capacity))
	}
	r.fifo.Enqueue(t)
	return nil
}

// RemoveFirst removes the first task matching match. onRemove, when non-nil,
// runs with the removed task before the lock is released.
func (r *Ready) RemoveFirst(match func(model.Task) bool, onRemove func(model.Task)) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		removed model.Task
		found   bool
	)
	for n := r.fifo.Len(); n > 0; n-- {
		t := r.fifo.Dequeue().(model.Task)
		if !found && match(t) {
			removed, found = t, true
			continue
		}
		r.fifo.Enqueue(t)
	}
	if !found {
		return model.Task{}, model.ErrNotFound
	}
	if onRemove != nil {
		onRemove(removed)
	}
	return removed, nil
}

// RotateFront moves a thread-like head to the tail. It reports the rotated
// task, or false when the queue is empty or the head is process-like.
func (r *Ready) RotateFront() (model.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fifo.Len() == 0 {
		return model.Task{}, false
	}
	head := r.fifo.Peek().(model.Task)
	if !head.IsThread() {
		return model.Task{}, false
	}
	r.fifo.Enqueue(r.fifo.Dequeue())
	return head, true
}

// Snapshot returns an ordered copy of the queue.
func (r *Ready) Snapshot() []model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Task, 0, r.fifo.Len())
	for n := r.fifo.Len(); n > 0; n-- {
		t := r.fifo.Dequeue().(model.Task)
		out = append(out, t)
		r.fifo.Enqueue(t)
	}
	return out
}

// Drain empties the queue and returns its former contents in order.
// onRemove, when non-nil, runs for each task in order before the lock is released.
func (r *Ready) Drain(onRemove func(model.Task)) []model.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Task, 0, r.fifo.Len())
	for r.fifo.Len() > 0 {
		t := r.fifo.Dequeue().(model.Task)
		if onRemove != nil {
			onRemove(t)
		}
		out = append(out, t)
	}
	return out
}

// Len returns the number of queued tasks.
func (r *Ready) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fifo.Len()
}

// Cap returns the queue capacity.
func (r *Ready) Cap() int {
	return r.capacity
}

// Full reports whether the queue is at capacity.
func (r *Ready) Full() bool {
	return r.Len() >= r.capacity
}

// ProcessWithID matches the process-like task with the given simulated PID.
func ProcessWithID(pid int) func(model.Task) bool {
	return func(t model.Task) bool {
		return t.IsProcess() && t.ID == pid
	}
}
