package model

import "fmt"

// Kind tags a task as process-like or thread-like.
type Kind string

const (
	// KindProcess tasks are externally spawned programs with a simulated PID.
	// They accept forced termination and are never rotated.
	KindProcess Kind = "process"
	// KindThread tasks are cooperatively scheduled units rotated round-robin.
	KindThread Kind = "thread"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindProcess || k == KindThread
}

// ParseKind converts user input to a Kind. The empty string means process.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "process", "proc", "p":
		return KindProcess, nil
	case "thread", "t":
		return KindThread, nil
	}
	return "", fmt.Errorf("unknown task kind %q (want process or thread)", s)
}

// EventType names a task lifecycle event.
type EventType string

const (
	EventAdmitted   EventType = "admitted"
	EventRejected   EventType = "rejected"
	EventTerminated EventType = "terminated"
	EventRotated    EventType = "rotated"
	EventReleased   EventType = "released"
	EventConfigured EventType = "configured"
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	return string(e)
}
