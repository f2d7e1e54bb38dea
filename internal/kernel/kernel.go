// Package kernel owns the resource pool, the ready queue and the launchers,
// and implements task admission and termination on top of them.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/me/amaos/internal/launcher"
	"github.com/me/amaos/internal/queue"
	"github.com/me/amaos/internal/resource"
	"github.com/me/amaos/internal/tracing"
	"github.com/me/amaos/pkg/model"
	"go.opentelemetry.io/otel/attribute"
)

// Default per-task cost. Every task reserves the same amount regardless of name or kind.
const (
	DefaultTaskRAM     = 100
	DefaultTaskStorage = 50
	DefaultStopTimeout = 5 * time.Second
)

// Config holds kernel configuration.
type Config struct {
	TaskRAM     int
	TaskStorage int
	// StopTimeout bounds each force-stop request.
	StopTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TaskRAM:     DefaultTaskRAM,
		TaskStorage: DefaultTaskStorage,
		StopTimeout: DefaultStopTimeout,
	}
}

// Kernel is the single system object. All operations are safe for concurrent use
// with each other and with the scheduler's rotation.
type Kernel struct {
	pool      *resource.Pool
	queue     *queue.Ready
	launchers *launcher.Registry
	pids      *pidAllocator
	recorders []Recorder
	config    Config
	logger    *slog.Logger
}

// Option configures optional Kernel dependencies.
type Option func(*Kernel)

// WithRecorder adds an event recorder.
func WithRecorder(r Recorder) Option {
	return func(k *Kernel) {
		k.recorders = append(k.recorders, r)
	}
}

// WithPIDSource makes simulated PIDs deterministic (tests).
func WithPIDSource(src rand.Source) Option {
	return func(k *Kernel) {
		k.pids = newPIDAllocator(src)
	}
}

// New creates a Kernel over the given pool, queue and launchers.
func New(pool *resource.Pool, q *queue.Ready, reg *launcher.Registry, cfg Config, logger *slog.Logger, opts ...Option) *Kernel {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	k := &Kernel{
		pool:      pool,
		queue:     q,
		launchers: reg,
		config:    cfg,
		logger:    logger.With("component", "kernel"),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.pids == nil {
		k.pids = newPIDAllocator(nil)
	}
	return k
}

// Launch admits a new task: validate, reserve, start, enqueue.
// On any error nothing stays reserved and nothing is queued.
func (k *Kernel) Launch(ctx context.Context, name string, kind model.Kind) (task model.Task, err error) {
	ctx, span := tracing.StartSpan(ctx, "kernel.Launch",
		attribute.String("task.name", name), attribute.String("task.kind", kind.String()))
	defer func() {
		span.SetAttributes(attribute.Int("task.id", task.ID))
		tracing.EndSpan(span, err)
	}()

	task, err = k.admit(ctx, name, kind)
	if err != nil {
		ev := newEvent(model.EventRejected, model.Task{Name: name, Kind: kind})
		ev.Detail = string(model.CodeOf(err))
		k.record(ctx, ev)
		k.logger.Info("task rejected", "name", name, "kind", kind, "error", err)
		return model.Task{}, err
	}
	k.record(ctx, newEvent(model.EventAdmitted, task))
	k.logger.Info("task admitted", "id", task.ID, "name", task.Name, "kind", task.Kind)
	return task, nil
}

func (k *Kernel) admit(ctx context.Context, name string, kind model.Kind) (model.Task, error) {
	if err := model.ValidateName(name); err != nil {
		return model.Task{}, err
	}
	if !kind.Valid() {
		return model.Task{}, model.NewError(model.CodeValidation, fmt.Sprintf("unknown task kind %q", kind))
	}
	l, err := k.launchers.Get(kind)
	if err != nil {
		return model.Task{}, model.WrapError(model.CodeLaunchFailed, "launch "+name, err)
	}
	// Cheap early exit; Append below is the authoritative check.
	if k.queue.Full() {
		return model.Task{}, model.NewError(model.CodeQueueFull, fmt.Sprintf("ready queue is full (capacity %d)", k.queue.Cap()))
	}

	ram, storage := k.config.TaskRAM, k.config.TaskStorage
	if !k.pool.Reserve(ram, storage) {
		return model.Task{}, model.NewError(model.CodeInsufficientResources,
			fmt.Sprintf("not enough RAM or storage for %s (need %d RAM, %d storage)", name, ram, storage))
	}

	h, err := l.Start(ctx, name)
	if err != nil {
		k.pool.Release(ram, storage)
		return model.Task{}, model.WrapError(model.CodeLaunchFailed, "launch "+name, err)
	}

	task := model.Task{
		ID:          h.ID,
		Name:        name,
		Kind:        kind,
		RAMUsed:     ram,
		StorageUsed: storage,
		Ref:         h.Ref,
		AdmittedAt:  time.Now().UTC(),
	}
	if kind == model.KindProcess {
		pid, err := k.pids.Allocate()
		if err != nil {
			k.rollback(ctx, l, task)
			return model.Task{}, err
		}
		task.ID = pid
	}

	if err := k.queue.Append(task); err != nil {
		k.rollback(ctx, l, task)
		if kind == model.KindProcess {
			k.pids.Free(task.ID)
		}
		return model.Task{}, err
	}
	return task, nil
}

// rollback undoes a launch whose task never made it into the queue.
func (k *Kernel) rollback(ctx context.Context, l launcher.Launcher, task model.Task) {
	k.pool.Release(task.RAMUsed, task.StorageUsed)
	stopCtx, cancel := k.stopContext(ctx)
	defer cancel()
	if err := l.ForceStop(stopCtx, task); err != nil {
		k.logger.Warn("stop unqueued task", "name", task.Name, "error", err)
	}
}

// Terminate force-stops the process-like task with the given PID, releases its
// resources and removes it from the queue. Thread-like tasks never match.
func (k *Kernel) Terminate(ctx context.Context, pid int) (_ model.Task, err error) {
	ctx, span := tracing.StartSpan(ctx, "kernel.Terminate", attribute.Int("task.id", pid))
	defer func() { tracing.EndSpan(span, err) }()

	l, lerr := k.launchers.Get(model.KindProcess)

	task, err := k.queue.RemoveFirst(queue.ProcessWithID(pid), func(t model.Task) {
		if lerr == nil {
			k.forceStop(ctx, l, t)
		}
		k.pool.Release(t.RAMUsed, t.StorageUsed)
	})
	if err != nil {
		return model.Task{}, model.NewNotFoundError(model.KindProcess, pid)
	}
	k.pids.Free(pid)

	k.record(ctx, newEvent(model.EventTerminated, task))
	k.logger.Info("task terminated", "pid", task.ID, "name", task.Name)
	return task, nil
}

// ShutdownAll empties the queue: every task is handed back to its launcher
// and its resources are released while the queue is still locked. Process
// content is force-stopped; thread handles are forgotten. It returns the
// tasks that were queued.
func (k *Kernel) ShutdownAll(ctx context.Context) []model.Task {
	ctx, span := tracing.StartSpan(ctx, "kernel.ShutdownAll")
	defer span.End()

	tasks := k.queue.Drain(func(t model.Task) {
		if l, err := k.launchers.Get(t.Kind); err == nil {
			k.forceStop(ctx, l, t)
		}
		if t.IsProcess() {
			k.pids.Free(t.ID)
		}
		k.pool.Release(t.RAMUsed, t.StorageUsed)
	})
	span.SetAttributes(attribute.Int("tasks", len(tasks)))

	for _, t := range tasks {
		k.record(ctx, newEvent(model.EventReleased, t))
	}
	k.logger.Info("all tasks shut down", "count", len(tasks))
	return tasks
}

// stopContext bounds a stop request by StopTimeout. It ignores cancellation of
// ctx: once a task leaves the queue its content must be stopped.
func (k *Kernel) stopContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), k.config.StopTimeout)
}

func (k *Kernel) forceStop(ctx context.Context, l launcher.Launcher, t model.Task) {
	stopCtx, cancel := k.stopContext(ctx)
	defer cancel()
	if err := l.ForceStop(stopCtx, t); err != nil {
		k.logger.Warn("force-stop failed", "id", t.ID, "kind", t.Kind, "name", t.Name, "error", err)
	}
}

// Rotate performs one round-robin step. It implements scheduler.Rotator.
func (k *Kernel) Rotate(ctx context.Context) (model.Task, bool) {
	t, ok := k.queue.RotateFront()
	if ok {
		k.record(ctx, newEvent(model.EventRotated, t))
	}
	return t, ok
}

// Configure replaces the pool capacity. It must be called before any task is
// admitted; doing otherwise breaks the accounting, so it is only warned about.
func (k *Kernel) Configure(ctx context.Context, ram, storage, cores int) (err error) {
	ctx, span := tracing.StartSpan(ctx, "kernel.Configure",
		attribute.Int("ram", ram), attribute.Int("storage", storage), attribute.Int("cores", cores))
	defer func() { tracing.EndSpan(span, err) }()

	if n := k.queue.Len(); n > 0 {
		k.logger.Warn("reconfiguring resources with active tasks", "active", n)
	}
	if err := k.pool.Configure(ram, storage, cores); err != nil {
		return err
	}
	ev := newEvent(model.EventConfigured, model.Task{RAMUsed: ram, StorageUsed: storage})
	ev.Detail = fmt.Sprintf("cores=%d", cores)
	k.record(ctx, ev)
	k.logger.Info("resources configured", "ram", ram, "storage", storage, "cores", cores)
	return nil
}

// Tasks returns an ordered snapshot of the ready queue.
func (k *Kernel) Tasks() []model.Task {
	return k.queue.Snapshot()
}

// Resources returns a snapshot of the resource pool.
func (k *Kernel) Resources() model.Resources {
	return k.pool.Snapshot()
}

// Live returns, per kind, how much launched content its launcher still tracks.
func (k *Kernel) Live() map[model.Kind]int {
	return k.launchers.Live()
}

// QueueLen returns the number of admitted tasks.
func (k *Kernel) QueueLen() int {
	return k.queue.Len()
}

// QueueCap returns the ready queue capacity.
func (k *Kernel) QueueCap() int {
	return k.queue.Cap()
}

// Cost returns the fixed per-task reservation.
func (k *Kernel) Cost() (ram, storage int) {
	return k.config.TaskRAM, k.config.TaskStorage
}
