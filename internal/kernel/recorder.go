package kernel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/me/amaos/pkg/model"
)

// Recorder observes task lifecycle events (metrics, journal).
type Recorder interface {
	Record(ctx context.Context, ev model.Event) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, ev model.Event) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, ev model.Event) error {
	return f(ctx, ev)
}

func newEvent(typ model.EventType, t model.Task) model.Event {
	return model.Event{
		ID:        "evt_" + uuid.NewString(),
		Type:      typ,
		TaskID:    t.ID,
		TaskName:  t.Name,
		Kind:      t.Kind,
		RAM:       t.RAMUsed,
		Storage:   t.StorageUsed,
		CreatedAt: time.Now().UTC(),
	}
}

// record fans ev out to every recorder. Recorder failures are logged, never returned.
func (k *Kernel) record(ctx context.Context, ev model.Event) {
	for _, r := range k.recorders {
		if err := r.Record(ctx, ev); err != nil {
			k.logger.Warn("record event", "type", ev.Type, "task", ev.TaskName, "error", err)
		}
	}
}
