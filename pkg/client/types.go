package client

import "time"

// DevRequest starts a dev server in Cwd. Nil fields are omitted.
type DevRequest struct {
	Cwd  string  `json:"cwd"`
	Port *int    `json:"port,omitempty"`
	Host *string `json:"host,omitempty"`
	Open *bool   `json:"open,omitempty"`
}

type PreviewRequest struct {
	Cwd  string `json:"cwd"`
	Port *int   `json:"port,omitempty"`
}

type BuildRequest struct {
	Cwd    string  `json:"cwd"`
	OutDir *string `json:"outDir,omitempty"`
	Mode   *string `json:"mode,omitempty"`
}

// ServerResult is returned by Dev and Preview.
type ServerResult struct {
	ServerID string `json:"serverId"`
	URL      string `json:"url"`
	PID      int    `json:"pid"`
}

type BuildResult struct {
	Success bool   `json:"success"`
	OutDir  string `json:"outDir"`
}

// Server describes one running dev or preview server.
type Server struct {
	ServerID  string    `json:"serverId"`
	PID       int       `json:"pid"`
	Kind      string    `json:"kind,omitempty"`
	Cwd       string    `json:"cwd,omitempty"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"startedAt"`
}

// Usage is the resource snapshot reported by Status.
type Usage struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

type StatusResult struct {
	Server Server   `json:"server"`
	Tail   []string `json:"tail"`
	Usage  *Usage   `json:"usage,omitempty"`
}

// ProcedureMeta mirrors the metadata served at {base}/procedures.
type ProcedureMeta struct {
	Description string            `json:"description"`
	Args        []string          `json:"args"`
	Shorts      map[string]string `json:"shorts"`
	Output      string            `json:"output"`
}

type Procedure struct {
	Name string        `json:"name"`
	Path []string      `json:"path"`
	Meta ProcedureMeta `json:"meta"`
}

// Issue is one field-level validation problem.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error    string   `json:"error"`
	Issues   []Issue  `json:"issues,omitempty"`
	Code     *int     `json:"code,omitempty"`
	Stderr   string   `json:"stderr,omitempty"`
	ServerID string   `json:"serverId,omitempty"`
	Tail     []string `json:"tail,omitempty"`
}
