// Package store persists the task event journal.
package store

import (
	"context"

	"github.com/me/amaos/pkg/model"
)

// Store defines the persistence layer for lifecycle events.
type Store interface {
	Record(ctx context.Context, ev model.Event) error
	ListEvents(ctx context.Context, opts ListOptions) ([]model.Event, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// ListOptions pages and filters event listings. Newest events come first.
type ListOptions struct {
	Limit  int
	Offset int
	Type   model.EventType
	TaskID int
}

// Clamp forces Limit and Offset into range.
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
