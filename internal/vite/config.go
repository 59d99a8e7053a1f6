package vite

import (
	"time"

	"github.com/loykin/vitesrv/internal/logger"
	"github.com/loykin/vitesrv/internal/registry"
)

// Config selects the tool that is launched and how long servers may take to
// announce their URL.
type Config struct {
	// Command and Args form the tool invocation; operation arguments are
	// appended after Args.
	Command string
	Args    []string
	// Env entries ("KEY=VALUE") are added to the inherited environment.
	Env          []string
	ReadyTimeout time.Duration
	// DefaultOutDir is reported by Build when no outDir was requested.
	DefaultOutDir string
	// TailLines bounds the output lines returned by Status and attached to
	// server start errors.
	TailLines int
	// Log optionally tees child output into rotated files.
	Log logger.FileConfig
}

func DefaultConfig() Config {
	return Config{
		Command:       "npx",
		Args:          []string{"vite"},
		ReadyTimeout:  registry.DefaultReadyTimeout,
		DefaultOutDir: "dist",
		TailLines:     50,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Command == "" {
		c.Command = d.Command
		if c.Args == nil {
			c.Args = d.Args
		}
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = d.ReadyTimeout
	}
	if c.DefaultOutDir == "" {
		c.DefaultOutDir = d.DefaultOutDir
	}
	if c.TailLines <= 0 {
		c.TailLines = d.TailLines
	}
	return c
}
