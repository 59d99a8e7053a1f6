package vite

import (
	"github.com/loykin/vitesrv/internal/metrics"
	"github.com/loykin/vitesrv/internal/registry"
)

type DevInput struct {
	// Cwd is the project directory containing the vite config.
	Cwd  string  `json:"cwd" validate:"required"`
	Port *int    `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Host *string `json:"host,omitempty"`
	Open *bool   `json:"open,omitempty"`
}

type PreviewInput struct {
	// Cwd is the project directory containing the built output.
	Cwd  string `json:"cwd" validate:"required"`
	Port *int   `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
}

type BuildInput struct {
	Cwd    string  `json:"cwd" validate:"required"`
	OutDir *string `json:"outDir,omitempty"`
	Mode   *string `json:"mode,omitempty"`
}

type StopInput struct {
	ServerID string `json:"serverId" validate:"required"`
}

type StatusInput struct {
	ServerID string `json:"serverId" validate:"required"`
}

// ServerOutput is returned by StartDev and Preview.
type ServerOutput struct {
	ServerID string `json:"serverId"`
	URL      string `json:"url"`
	PID      int    `json:"pid"`
}

type BuildOutput struct {
	Success bool   `json:"success"`
	OutDir  string `json:"outDir"`
}

type StopOutput struct {
	Success bool `json:"success"`
}

type ListOutput struct {
	Servers []registry.Server `json:"servers"`
}

type StatusOutput struct {
	Server registry.Server `json:"server"`
	Tail   []string        `json:"tail"`
	Usage  *metrics.Usage  `json:"usage,omitempty"`
}
