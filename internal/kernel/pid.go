package kernel

import (
	"math/rand/v2"
	"sync"

	"github.com/me/amaos/pkg/model"
)

// Simulated PIDs are drawn from [pidBase, pidBase+pidSpan).
const (
	pidBase = 1000
	pidSpan = 10000
)

// pidAllocator hands out simulated PIDs that are unique among live process tasks.
type pidAllocator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	inUse map[int]struct{}
}

func newPIDAllocator(src rand.Source) *pidAllocator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &pidAllocator{rng: rand.New(src), inUse: make(map[int]struct{})}
}

// Allocate returns a random unused PID.
func (a *pidAllocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.inUse) >= pidSpan {
		return 0, model.NewError(model.CodeQueueFull, "simulated pid space exhausted")
	}
	for tries := 0; tries < 64; tries++ {
		pid := pidBase + a.rng.IntN(pidSpan)
		if _, taken := a.inUse[pid]; !taken {
			a.inUse[pid] = struct{}{}
			return pid, nil
		}
	}
	// Dense table: fall back to the first free slot.
	for pid := pidBase; pid < pidBase+pidSpan; pid++ {
		if _, taken := a.inUse[pid]; !taken {
			a.inUse[pid] = struct{}{}
			return pid, nil
		}
	}
	return 0, model.NewError(model.CodeQueueFull, "simulated pid space exhausted")
}

// Free returns pid to the pool.
func (a *pidAllocator) Free(pid int) {
	a.mu.Lock()
	delete(a.inUse, pid)
	a.mu.Unlock()
}

func (a *pidAllocator) live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inUse)
}
