// Package resource accounts for the simulated RAM, storage and CPU cores
// against which every admitted task is reserved.
package resource

import (
	"fmt"
	"sync"

	"github.com/me/amaos/pkg/model"
)

// Defaults match the stock machine: 2 GiB RAM, 250 GiB disk, 8 cores. Amounts are MiB.
const (
	DefaultRAM     = 2048
	DefaultStorage = 256000
	DefaultCores   = 8
)

// Pool tracks available RAM and storage. All mutation happens under mu.
// Cores are informational only; admission never consumes them.
type Pool struct {
	mu               sync.Mutex
	totalRAM         int
	totalStorage     int
	availableRAM     int
	availableStorage int
	cores            int
}

// NewPool creates a pool with the given capacity fully available.
func NewPool(ram, storage, cores int) (*Pool, error) {
	p := &Pool{}
	if err := p.Configure(ram, storage, cores); err != nil {
		return nil, err
	}
	return p, nil
}

// NewDefaultPool creates a pool with the default capacity.
func NewDefaultPool() *Pool {
	p, _ := NewPool(DefaultRAM, DefaultStorage, DefaultCores)
	return p
}

// Reserve takes ram and storage from the pool iff both fit.
// It returns false and leaves the pool untouched otherwise.
func (p *Pool) Reserve(ram, storage int) bool {
	if ram < 0 || storage < 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if ram > p.availableRAM || storage > p.availableStorage {
		return false
	}
	p.availableRAM -= ram
	p.availableStorage -= storage
	return true
}

// Release returns ram and storage to the pool. The caller must pass exactly
// the amounts it reserved, exactly once.
func (p *Pool) Release(ram, storage int) {
	p.mu.Lock()
	p.availableRAM += ram
	p.availableStorage += storage
	p.mu.Unlock()
}

// Configure overwrites the pool capacity and makes all of it available.
// Calling it while tasks hold reservations breaks the accounting; that is
// the caller's responsibility.
func (p *Pool) Configure(ram, storage, cores int) error {
	if ram < 0 || storage < 0 || cores < 0 {
		return model.NewError(model.CodeValidation,
			fmt.Sprintf("resource amounts must be non-negative (ram=%d storage=%d cores=%d)", ram, storage, cores))
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalRAM, p.availableRAM = ram, ram
	p.totalStorage, p.availableStorage = storage, storage
	p.cores = cores
	return nil
}

// Snapshot returns the current counters.
func (p *Pool) Snapshot() model.Resources {
	p.mu.Lock()
	defer p.mu.Unlock()
	return model.Resources{
		TotalRAM:         p.totalRAM,
		TotalStorage:     p.totalStorage,
		AvailableRAM:     p.availableRAM,
		AvailableStorage: p.availableStorage,
		Cores:            p.cores,
	}
}
