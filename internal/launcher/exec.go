package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/me/amaos/pkg/model"
)

// DefaultTasksDir is where ExecLauncher looks for task executables.
const DefaultTasksDir = "./tasks"

// ExecLauncher runs process-like tasks as local OS processes from a tasks directory.
type ExecLauncher struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	procs map[string]*os.Process // keyed by OS pid
}

// NewExecLauncher creates an ExecLauncher that starts <dir>/<name>.
// If dir is empty, DefaultTasksDir is used.
func NewExecLauncher(dir string, logger *slog.Logger) *ExecLauncher {
	if dir == "" {
		dir = DefaultTasksDir
	}
	return &ExecLauncher{
		dir:    dir,
		logger: logger.With("component", "exec-launcher"),
		procs:  make(map[string]*os.Process),
	}
}

// Kind returns model.KindProcess.
func (l *ExecLauncher) Kind() model.Kind {
	return model.KindProcess
}

// Start launches the executable and returns its OS pid as the Ref.
// The process is reaped in the background; it outlives ctx.
func (l *ExecLauncher) Start(_ context.Context, name string) (Handle, error) {
	path := filepath.Join(l.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return Handle{}, fmt.Errorf("task %s: %w", name, err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return Handle{}, fmt.Errorf("task %s: %s is not executable", name, path)
	}

	cmd := exec.Command(path)
	cmd.Dir = l.dir
	if err := cmd.Start(); err != nil {
		return Handle{}, fmt.Errorf("task %s: start: %w", name, err)
	}

	ref := strconv.Itoa(cmd.Process.Pid)
	l.mu.Lock()
	l.procs[ref] = cmd.Process
	l.mu.Unlock()

	go func() {
		err := cmd.Wait()
		l.mu.Lock()
		delete(l.procs, ref)
		l.mu.Unlock()
		l.logger.Debug("process exited", "task", name, "os_pid", ref, "error", err)
	}()

	l.logger.Debug("process started", "task", name, "os_pid", ref, "path", path)
	return Handle{Ref: ref}, nil
}

// ForceStop kills the OS process behind task. A process that already exited is not an error.
func (l *ExecLauncher) ForceStop(_ context.Context, task model.Task) error {
	l.mu.Lock()
	proc, ok := l.procs[task.Ref]
	l.mu.Unlock()
	if !ok {
		l.logger.Debug("force-stop: process already gone", "pid", task.ID, "os_pid", task.Ref)
		return nil
	}
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("kill pid %d (os pid %s): %w", task.ID, task.Ref, err)
	}
	return nil
}

// Live returns the number of child processes that have not exited.
func (l *ExecLauncher) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}
