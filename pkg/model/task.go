package model

import (
	"fmt"
	"strings"
	"time"
)

// MaxNameLen is the longest task name accepted at admission.
const MaxNameLen = 49

// Task is an admitted unit of work held by the ready queue.
// Fields are fixed at admission; only the task's queue position changes afterwards.
type Task struct {
	// ID is the simulated PID for process-like tasks and the launcher's
	// handle for thread-like tasks. Never zero once admitted.
	ID   int    `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	RAMUsed     int `json:"ram_used"`
	StorageUsed int `json:"storage_used"`

	// Ref is the launcher's reference to the running content
	// (OS pid, container ID or thread UUID), used for force-stop.
	Ref string `json:"ref,omitempty"`

	AdmittedAt time.Time `json:"admitted_at"`
}

// IsProcess reports whether the task is process-like.
func (t Task) IsProcess() bool {
	return t.Kind == KindProcess
}

// IsThread reports whether the task is thread-like.
func (t Task) IsThread() bool {
	return t.Kind == KindThread
}

// Label formats the task the way the operator listing shows it.
func (t Task) Label() string {
	if t.IsThread() {
		return fmt.Sprintf("TID: %d %s", t.ID, t.Name)
	}
	return fmt.Sprintf("PID: %d %s", t.ID, t.Name)
}

// ValidateName checks a requested task name.
// Names are used as file and container names, so separators and whitespace are refused.
func ValidateName(name string) error {
	switch {
	case name == "":
		return NewError(CodeInvalidName, "task name is empty")
	case len(name) > MaxNameLen:
		return NewError(CodeInvalidName, fmt.Sprintf("task name exceeds %d characters", MaxNameLen))
	case strings.ContainsAny(name, "/\\ \t\r\n"):
		return NewError(CodeInvalidName, fmt.Sprintf("task name %q contains a separator or whitespace", name))
	case name == "." || name == "..":
		return NewError(CodeInvalidName, fmt.Sprintf("task name %q is reserved", name))
	}
	return nil
}
