package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for ids that were never issued or were already removed.
	ErrNotFound = errors.New("server not found")
	// ErrTimeout is returned when no readiness line was seen in time.
	// The process keeps running and stays registered.
	ErrTimeout = errors.New("timeout waiting for server to start")
	// ErrExited matches any *ExitedError via errors.Is.
	ErrExited = errors.New("server exited before becoming ready")
)

// ExitedError reports a process that terminated before announcing its URL.
type ExitedError struct {
	Code int
}

func (e *ExitedError) Error() string {
	return fmt.Sprintf("server exited with code %d", e.Code)
}

func (e *ExitedError) Is(target error) bool { return target == ErrExited }
