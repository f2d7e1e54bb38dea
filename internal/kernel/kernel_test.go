package kernel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/me/amaos/internal/launcher"
	"github.com/me/amaos/internal/queue"
	"github.com/me/amaos/internal/resource"
	"github.com/me/amaos/pkg/model"
)

// fakeLauncher records starts and stops and fails on demand.
type fakeLauncher struct {
	kind model.Kind

	mu       sync.Mutex
	next     int
	failNext error
	started  []string
	stopped  []model.Task
	stopCtx  []error // ctx.Err() seen by each ForceStop

	// onStop runs inside ForceStop, outside f.mu.
	onStop func(model.Task)
}

func (f *fakeLauncher) Kind() model.Kind { return f.kind }

func (f *fakeLauncher) Start(_ context.Context, name string) (launcher.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return launcher.Handle{}, err
	}
	f.next++
	f.started = append(f.started, name)
	h := launcher.Handle{Ref: name}
	if f.kind == model.KindThread {
		h.ID = f.next
	}
	return h, nil
}

func (f *fakeLauncher) ForceStop(ctx context.Context, t model.Task) error {
	if f.onStop != nil {
		f.onStop(t)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, t)
	f.stopCtx = append(f.stopCtx, ctx.Err())
	return nil
}

func (f *fakeLauncher) stops() []model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Task(nil), f.stopped...)
}

type harness struct {
	k       *Kernel
	procs   *fakeLauncher
	threads *fakeLauncher
	events  *eventLog
	initial model.Resources
}

type eventLog struct {
	mu     sync.Mutex
	events []model.Event
}

func (l *eventLog) Record(_ context.Context, ev model.Event) error {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	return nil
}

func (l *eventLog) types() []model.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, ram, storage, capacity int) *harness {
	t.Helper()
	logger := testLogger()

	pool, err := resource.NewPool(ram, storage, 4)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	q, err := queue.NewReady(capacity)
	if err != nil {
		t.Fatalf("NewReady: %v", err)
	}
	procs := &fakeLauncher{kind: model.KindProcess}
	threads := &fakeLauncher{kind: model.KindThread}
	reg := launcher.NewRegistry(logger)
	reg.Register(procs)
	reg.Register(threads)

	events := &eventLog{}
	k := New(pool, q, reg, DefaultConfig(), logger,
		WithRecorder(events),
		WithPIDSource(rand.NewPCG(1, 2)),
	)
	return &harness{k: k, procs: procs, threads: threads, events: events, initial: pool.Snapshot()}
}

// assertConserved checks available + sum(used) == initial for RAM and storage.
func (h *harness) assertConserved(t *testing.T) {
	t.Helper()
	res := h.k.Resources()
	ram, storage := res.AvailableRAM, res.AvailableStorage
	for _, task := range h.k.Tasks() {
		ram += task.RAMUsed
		storage += task.StorageUsed
	}
	if ram != h.initial.TotalRAM || storage != h.initial.TotalStorage {
		t.Fatalf("conservation violated: ram %d/%d storage %d/%d", ram, h.initial.TotalRAM, storage, h.initial.TotalStorage)
	}
}

func (h *harness) mustLaunch(t *testing.T, name string, kind model.Kind) model.Task {
	t.Helper()
	task, err := h.k.Launch(context.Background(), name, kind)
	if err != nil {
		t.Fatalf("Launch(%s, %s): %v", name, kind, err)
	}
	h.assertConserved(t)
	return task
}

func taskNames(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Name
	}
	return out
}

func sameNames(a []string, b ...string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLaunch_AdmitsProcess(t *testing.T) {
	h := newHarness(t, 2048, 256000, 50)

	task := h.mustLaunch(t, "calc", model.KindProcess)
	if task.ID < pidBase || task.ID >= pidBase+pidSpan {
		t.Errorf("pid %d outside simulated range", task.ID)
	}
	if task.RAMUsed != DefaultTaskRAM || task.StorageUsed != DefaultTaskStorage {
		t.Errorf("cost = %d/%d, want %d/%d", task.RAMUsed, task.StorageUsed, DefaultTaskRAM, DefaultTaskStorage)
	}
	if task.Ref != "calc" {
		t.Errorf("Ref = %q, want launcher ref", task.Ref)
	}
	res := h.k.Resources()
	if res.AvailableRAM != 2048-DefaultTaskRAM || res.AvailableStorage != 256000-DefaultTaskStorage {
		t.Errorf("pool = %+v", res)
	}
	if got := h.events.types(); len(got) != 1 || got[0] != model.EventAdmitted {
		t.Errorf("events = %v, want [admitted]", got)
	}
}

func TestLaunch_ThreadUsesLauncherHandle(t *testing.T) {
	h := newHarness(t, 2048, 256000, 50)
	a := h.mustLaunch(t, "a", model.KindThread)
	b := h.mustLaunch(t, "b", model.KindThread)
	if a.ID != 1 || b.ID != 2 {
		t.Errorf("thread ids = %d, %d, want launcher handles 1, 2", a.ID, b.ID)
	}
}

func TestLaunch_FIFOOrder(t *testing.T) {
	h := newHarness(t, 2048, 256000, 50)
	h.mustLaunch(t, "A", model.KindProcess)
	h.mustLaunch(t, "B", model.KindThread)
	h.mustLaunch(t, "C", model.KindProcess)

	if got := taskNames(h.k.Tasks()); !sameNames(got, "A", "B", "C") {
		t.Errorf("order = %v, want [A B C]", got)
	}
}

func TestLaunch_UniquePIDs(t *testing.T) {
	h := newHarness(t, 100*50, 50*50, 50)
	seen := make(map[int]bool)
	for i := 0; i < 50; i++ {
		task := h.mustLaunch(t, "p", model.KindProcess)
		if seen[task.ID] {
			t.Fatalf("duplicate pid %d", task.ID)
		}
		seen[task.ID] = true
	}
}

func TestLaunch_FailuresLeaveNoTrace(t *testing.T) {
	tests := []struct {
		name    string
		ram     int
		task    string
		kind    model.Kind
		fail    error
		wantErr error
	}{
		{"empty name", 2048, "", model.KindProcess, nil, model.ErrInvalidName},
		{"name with slash", 2048, "../x", model.KindProcess, nil, model.ErrInvalidName},
		{"insufficient ram", 99, "big", model.KindProcess, nil, model.ErrInsufficientResources},
		{"launch failure", 2048, "broken", model.KindProcess, errors.New("exec format error"), model.ErrLaunchFailed},
		{"thread launch failure", 2048, "broken", model.KindThread, errors.New("no handles"), model.ErrLaunchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.ram, 256000, 50)
			h.procs.failNext = tt.fail
			h.threads.failNext = tt.fail
			before := h.k.Resources()

			_, err := h.k.Launch(context.Background(), tt.task, tt.kind)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Launch error = %v, want %v", err, tt.wantErr)
			}
			if h.k.QueueLen() != 0 {
				t.Errorf("queue length = %d, want 0", h.k.QueueLen())
			}
			if after := h.k.Resources(); after != before {
				t.Errorf("pool changed: %+v -> %+v", before, after)
			}
			if got := h.events.types(); len(got) != 1 || got[0] != model.EventRejected {
				t.Errorf("events = %v, want [rejected]", got)
			}
		})
	}
}

func TestLaunch_InsufficientDoesNotStart(t *testing.T) {
	h := newHarness(t, 50, 256000, 50)
	h.k.Launch(context.Background(), "x", model.KindProcess)
	if len(h.procs.started) != 0 {
		t.Error("launcher must not run when resources are insufficient")
	}
}

func TestLaunch_UnknownKind(t *testing.T) {
	h := newHarness(t, 2048, 256000, 50)
	_, err := h.k.Launch(context.Background(), "x", model.Kind("fiber"))
	if model.CodeOf(err) != model.CodeValidation {
		t.Fatalf("Launch = %v, want validation error", err)
	}
}

func TestLaunch_QueueFull(t *testing.T) {
	h := newHarness(t, 2048, 256000, 2)
	h.mustLaunch(t, "A", model.KindProcess)
	h.mustLaunch(t, "B", model.KindProcess)
	before := h.k.Resources()

	_, err := h.k.Launch(context.Background(), "C", model.KindProcess)
	if !errors.Is(err, model.ErrQueueFull) {
		t.Fatalf("Launch = %v, want ErrQueueFull", err)
	}
	if after := h.k.Resources(); after != before {
		t.Errorf("pool changed on full queue: %+v -> %+v", before, after)
	}
	if len(h.procs.started) != 2 {
		t.Errorf("launcher started %d tasks, want 2", len(h.procs.started))
	}
	h.assertConserved(t)
}

func TestRollback_ReleasesAndStops(t *testing.T) {
	h := newHarness(t, 2048, 256000, 5)
	task := model.Task{ID: 1234, Name: "orphan", Kind: model.KindProcess, RAMUsed: 100, StorageUsed: 50, Ref: "orphan"}
	h.k.pool.Reserve(100, 50)

	h.k.rollback(context.Background(), h.procs, task)

	if got := h.k.Resources(); got != h.initial {
		t.Errorf("pool = %+v, want %+v", got, h.initial)
	}
	if stops := h.procs.stops(); len(stops) != 1 || stops[0].Name != "orphan" {
		t.Errorf("stops = %v, want orphan", stops)
	}
}

func TestTerminate_RemovesOneAndRestores(t *testing.T) {
	h := newHarness(t, 2048, 256000, 50)
	a := h.mustLaunch(t, "A", model.KindProcess)
	b := h.mustLaunch(t, "B", model.KindProcess)
	c := h.mustLaunch(t, "C", model.KindProcess)
	before := h.k.Resources()

	got, err := h.k.Terminate(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if got.Name != "B" {
		t.Errorf("terminated %q, want B", got.Name)
	}
	if names := taskNames(h.k.Tasks()); !sameNames(names, "A", "C") {
		t.Errorf("order = %v, want [A C]", names)
	}
	after := h.k.Resources()
	if after.AvailableRAM-before.AvailableRAM != b.RAMUsed || after.AvailableStorage-before.AvailableStorage != b.StorageUsed {
		t.Errorf("restored %d/%d, want %d/%d", after.AvailableRAM-before.AvailableRAM,
			after.AvailableStorage-before.AvailableStorage, b.RAMUsed, b.StorageUsed)
	}
	if stops := h.procs.stops(); len(stops) != 1 || stops[0].ID != b.ID {
		t.Errorf("force-stopped %v, want only B", stops)
	}
	h.assertConserved(t)
	if a.ID == c.ID {
		t.Error("remaining tasks share a pid")
	}
}

func TestTerminate_NotFound(t *testing.T) {
	h := newHarness(t, 2048, 256000, 50)
	h.mustLaunch(t, "A", model.KindProcess)
	before := h.k.Resources()

	_, err := h.k.Terminate(context.Background(), 1)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Terminate = %v, want ErrNotFound", err)
	}
	if after := h.k.Resources(); after != before {
		t.Errorf("pool changed: %+v -> %+v", before, after)
	}
	if h.k.QueueLen() != 1 {
		t.Errorf("queue length = %d, want 1", h.k.QueueLen())
	}
}

func TestTerminate_Twice(t *testing.T) {
	h := newHarness(t, 2048, 256000, 50)
	p := h.mustLaunch(t, "A", model.KindProcess)
	ctx := context.Background()

	if _, err := h.k.Terminate(ctx, p.ID); err != nil {
		t.Fatalf("first Terminate: %v", err)
	}
	if _, err := h.k.Terminate(ctx, p.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("second Terminate = %v, want ErrNotFound", err)
	}
	if got := h.k.Resources(); got != h.initial {
		t.Errorf("pool = %+v, want initial %+v", got, h.initial)
	}
}

func TestTerminate_ThreadNotTerminable(t *testing.T) {
	h := newHarness(t, 2048, 256000, 50)
	th := h.mustLaunch(t, "worker", model.KindThread)

	if _, err := h.k.Terminate(context.Background(), th.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Terminate(thread) = %v, want ErrNotFound", err)
	}
	if h.k.QueueLen() != 1 {
		t.Error("thread must stay queued")
	}
}

func TestShutdownAll_Completeness(t *testing.T) {
	h := newHarness(t, 2048, 256000, 50)
	h.mustLaunch(t, "P1", model.KindProcess)
	h.mustLaunch(t, "T1", model.KindThread)
	h.mustLaunch(t, "P2", model.KindProcess)

	tasks := h.k.ShutdownAll(context.Background())
	if len(tasks) != 3 {
		t.Fatalf("ShutdownAll returned %d tasks, want 3", len(tasks))
	}
	if h.k.QueueLen() != 0 {
		t.Errorf("queue length = %d, want 0", h.k.QueueLen())
	}
	if got := h.k.Resources(); got != h.initial {
		t.Errorf("pool = %+v, want initial %+v", got, h.initial)
	}
	stops := h.procs.stops()
	if len(stops) != 2 {
		t.Errorf("force-stopped %d tasks, want 2 processes", len(stops))
	}
	for _, s := range stops {
		if !s.IsProcess() {
			t.Errorf("thread %q was force-stopped", s.Name)
		}
	}
	if got := h.threads.stops(); len(got) != 1 || got[0].Name != "T1" {
		t.Errorf("thread handles returned = %v, want [T1]", got)
	}
	if h.k.pids.live() != 0 {
		t.Errorf("live pids = %d, want 0", h.k.pids.live())
	}
}

func TestShutdownAll_ReleasesInQueueOrder(t *testing.T) {
	h := newHarness(t, 2048, 256000, 50)
	h.mustLaunch(t, "P1", model.KindProcess)
	h.mustLaunch(t, "P2", model.KindProcess)
	h.mustLaunch(t, "P3", model.KindProcess)

	// Each stop sees the previously drained tasks already released.
	var freeRAM []int
	h.procs.onStop = func(model.Task) {
		freeRAM = append(freeRAM, h.k.Resources().AvailableRAM)
	}
	h.k.ShutdownAll(context.Background())

	base := h.initial.TotalRAM - 300
	want := []int{base, base + 100, base + 200}
	if len(freeRAM) != len(want) {
		t.Fatalf("stops = %d, want %d", len(freeRAM), len(want))
	}
	for i := range want {
		if freeRAM[i] != want[i] {
			t.Errorf("free RAM at stop %d = %d, want %d", i, freeRAM[i], want[i])
		}
	}
}

func TestShutdownAll_ForgetsThreadHandles(t *testing.T) {
	logger := testLogger()
	pool, _ := resource.NewPool(2048, 256000, 4)
	q, _ := queue.NewReady(10)
	threads := launcher.NewThreadLauncher(logger)
	reg := launcher.NewRegistry(logger)
	reg.Register(threads)
	k := New(pool, q, reg, DefaultConfig(), logger)

	for _, name := range []string{"a", "b"} {
		if _, err := k.Launch(context.Background(), name, model.KindThread); err != nil {
			t.Fatalf("Launch: %v", err)
		}
	}
	if got := k.Live()[model.KindThread]; got != 2 {
		t.Fatalf("live threads = %d, want 2", got)
	}
	k.ShutdownAll(context.Background())
	if got := k.Live()[model.KindThread]; got != 0 {
		t.Errorf("live threads after shutdown = %d, want 0", got)
	}
}

func TestTerminate_StopSurvivesCancelledCaller(t *testing.T) {
	h := newHarness(t, 2048, 256000, 5)
	task := h.mustLaunch(t, "P1", model.KindProcess)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.k.Terminate(ctx, task.ID); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	h.procs.mu.Lock()
	defer h.procs.mu.Unlock()
	if len(h.procs.stopCtx) != 1 || h.procs.stopCtx[0] != nil {
		t.Errorf("force-stop context errors = %v, want [<nil>]", h.procs.stopCtx)
	}
}

func TestRotate_RecordsThreadOnly(t *testing.T) {
	h := newHarness(t, 2048, 256000, 50)
	h.mustLaunch(t, "T1", model.KindThread)
	h.mustLaunch(t, "T2", model.KindThread)
	h.mustLaunch(t, "T3", model.KindThread)

	rotated, ok := h.k.Rotate(context.Background())
	if !ok || rotated.Name != "T1" {
		t.Fatalf("Rotate = (%q, %v), want T1", rotated.Name, ok)
	}
	if got := taskNames(h.k.Tasks()); !sameNames(got, "T2", "T3", "T1") {
		t.Errorf("order = %v, want [T2 T3 T1]", got)
	}

	h2 := newHarness(t, 2048, 256000, 50)
	h2.mustLaunch(t, "P1", model.KindProcess)
	h2.mustLaunch(t, "T2", model.KindThread)
	if _, ok := h2.k.Rotate(context.Background()); ok {
		t.Error("process head must not rotate")
	}
	for _, typ := range h2.events.types() {
		if typ == model.EventRotated {
			t.Error("no rotation event expected")
		}
	}
}

func TestConfigure(t *testing.T) {
	h := newHarness(t, 2048, 256000, 50)
	if err := h.k.Configure(context.Background(), 512, 1024, 2); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	want := model.Resources{TotalRAM: 512, TotalStorage: 1024, AvailableRAM: 512, AvailableStorage: 1024, Cores: 2}
	if got := h.k.Resources(); got != want {
		t.Errorf("Resources = %+v, want %+v", got, want)
	}
	if err := h.k.Configure(context.Background(), -1, 0, 0); err == nil {
		t.Error("negative configuration should fail")
	}
}

func TestKernel_ConservationUnderConcurrency(t *testing.T) {
	h := newHarness(t, 100*20, 50*20, 30)
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.k.Rotate(ctx)
			}
		}
	}()

	var launchers sync.WaitGroup
	for i := 0; i < 4; i++ {
		launchers.Add(1)
		go func(i int) {
			defer launchers.Done()
			for j := 0; j < 25; j++ {
				kind := model.KindProcess
				if j%3 == 0 {
					kind = model.KindThread
				}
				task, err := h.k.Launch(ctx, "w", kind)
				if err == nil && task.IsProcess() && j%2 == 0 {
					h.k.Terminate(ctx, task.ID)
				}
			}
		}(i)
	}
	launchers.Wait()
	close(stop)
	wg.Wait()

	h.assertConserved(t)
	h.k.ShutdownAll(ctx)
	if got := h.k.Resources(); got != h.initial {
		t.Errorf("after shutdown pool = %+v, want %+v", got, h.initial)
	}
}
