package vite

import (
	"fmt"
	"strings"
)

// BuildFailedError reports a build that ran but exited non-zero.
// Code is -1 when the build was terminated by a signal.
type BuildFailedError struct {
	Code   int
	Stderr string
}

func (e *BuildFailedError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("build failed with code %d", e.Code)
	}
	return fmt.Sprintf("build failed with code %d: %s", e.Code, msg)
}

// ServerError wraps a readiness failure of a dev or preview server with the
// id it was registered under. After a timeout the server is still running and
// ServerID can be passed to Stop; after an early exit it is already gone.
type ServerError struct {
	Kind     string
	ServerID string
	PID      int
	// Tail holds the most recent output lines of the server.
	Tail []string
	Err  error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s server %s: %v", e.Kind, e.ServerID, e.Err)
}

func (e *ServerError) Unwrap() error { return e.Err }
