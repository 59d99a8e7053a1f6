package registry

import "time"

type EventType string

const (
	EventRegistered  EventType = "registered"
	EventReady       EventType = "ready"
	EventTimeout     EventType = "timeout"
	EventExitedEarly EventType = "exited_early"
	EventExited      EventType = "exited"
	EventStopped     EventType = "stopped"
)

// Event describes a lifecycle transition of a registered server.
// ExitCode is only meaningful for EventExited and EventExitedEarly.
type Event struct {
	Type     EventType
	Server   Server
	ExitCode int
	At       time.Time
}
