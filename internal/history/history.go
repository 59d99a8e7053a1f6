package history

import (
	"context"
	"time"
)

// EventType names a lifecycle transition of a server or build.
type EventType string

const (
	EventRegistered  EventType = "registered"
	EventReady       EventType = "ready"
	EventTimeout     EventType = "timeout"
	EventExitedEarly EventType = "exited_early"
	EventExited      EventType = "exited"
	EventStopped     EventType = "stopped"
	EventBuildOK     EventType = "build_succeeded"
	EventBuildFailed EventType = "build_failed"
)

// Record is the flattened view of a server or build exported with each event.
// ServerID is empty for builds.
type Record struct {
	ServerID string `json:"server_id,omitempty"`
	PID      int    `json:"pid"`
	Kind     string `json:"kind"`
	Cwd      string `json:"cwd"`
	URL      string `json:"url,omitempty"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/audit systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
