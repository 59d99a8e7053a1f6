package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/vitesrv/internal/env"
	"github.com/loykin/vitesrv/internal/logger"
	"github.com/loykin/vitesrv/internal/vite"
)

// EnvPrefix is the prefix of environment overrides, e.g. VITESRV_SERVER_LISTEN.
const EnvPrefix = "VITESRV"

// Config represents the top-level TOML structure.
type Config struct {
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Tool    ToolConfig    `toml:"tool" mapstructure:"tool"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// ToolConfig selects the launched tool. Env entries override variables of
// the same name loaded from EnvFiles; both may reference ${VAR}.
type ToolConfig struct {
	Command       string        `toml:"command" mapstructure:"command"`
	Args          []string      `toml:"args" mapstructure:"args"`
	Env           []string      `toml:"env" mapstructure:"env"`
	EnvFiles      []string      `toml:"env_files" mapstructure:"env_files"`
	ReadyTimeout  time.Duration `toml:"ready_timeout" mapstructure:"ready_timeout"`
	DefaultOutDir string        `toml:"default_out_dir" mapstructure:"default_out_dir"`
	TailLines     int           `toml:"tail_lines" mapstructure:"tail_lines"`
}

// LogConfig holds the daemon logger settings plus where tool output is kept.
type LogConfig struct {
	logger.SlogConfig `mapstructure:",squash"`
	OutputDir         string `toml:"output_dir" mapstructure:"output_dir"`
	MaxSizeMB         int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups        int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays        int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress          bool   `toml:"compress" mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool `toml:"enabled" mapstructure:"enabled"`
}

// HistoryConfig lists sink DSNs; see factory.NewSinkFromDSN for formats.
type HistoryConfig struct {
	Enabled bool     `toml:"enabled" mapstructure:"enabled"`
	DSNs    []string `toml:"dsns" mapstructure:"dsns"`
}

var defaults = map[string]any{
	"server.listen":         "127.0.0.1:7070",
	"server.base_path":      "/api",
	"tool.command":          "npx",
	"tool.args":             []string{"vite"},
	"tool.env":              []string{},
	"tool.env_files":        []string{},
	"tool.ready_timeout":    "30s",
	"tool.default_out_dir":  "dist",
	"tool.tail_lines":       50,
	"log.level":             string(logger.LevelInfo),
	"log.format":            string(logger.FormatText),
	"log.color":             false,
	"log.timestamps":        true,
	"log.source":            false,
	"log.file":              "",
	"log.output_dir":        "",
	"log.max_size_mb":       logger.DefaultMaxSizeMB,
	"log.max_backups":       logger.DefaultMaxBackups,
	"log.max_age_days":      logger.DefaultMaxAgeDays,
	"log.compress":          false,
	"metrics.enabled":       true,
	"history.enabled":       false,
	"history.dsns":          []string{},
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns the built-in configuration with environment overrides applied.
func Default() (*Config, error) {
	return Load("")
}

// Load reads the TOML file at path (skipped when empty), applies VITESRV_*
// environment overrides, resolves tool env files and validates the result.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if path != "" {
		c.Tool.EnvFiles = relativeTo(filepath.Dir(path), c.Tool.EnvFiles)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	toolEnv, err := c.Tool.resolveEnv()
	if err != nil {
		return nil, err
	}
	c.Tool.Env = toolEnv
	return &c, nil
}

// Validate checks the fields that have no usable zero value.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen must not be empty"))
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		errs = append(errs, fmt.Errorf("server.base_path %q must start with /", c.Server.BasePath))
	}
	if strings.TrimSpace(c.Tool.Command) == "" {
		errs = append(errs, errors.New("tool.command must not be empty"))
	}
	if c.Tool.ReadyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("tool.ready_timeout must be positive, got %s", c.Tool.ReadyTimeout))
	}
	switch c.Log.Level {
	case logger.LevelDebug, logger.LevelInfo, logger.LevelWarn, logger.LevelError:
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case logger.FormatText, logger.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	if c.History.Enabled && len(c.History.DSNs) == 0 {
		errs = append(errs, errors.New("history.enabled requires at least one entry in history.dsns"))
	}
	return errors.Join(errs...)
}

// LoggerConfig converts the [log] section for the logger package.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Slog: c.Log.SlogConfig,
		File: logger.FileConfig{
			Dir:        c.Log.OutputDir,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}

// ViteConfig converts the [tool] section for the vite service.
func (c *Config) ViteConfig() vite.Config {
	return vite.Config{
		Command:       c.Tool.Command,
		Args:          append([]string(nil), c.Tool.Args...),
		Env:           append([]string(nil), c.Tool.Env...),
		ReadyTimeout:  c.Tool.ReadyTimeout,
		DefaultOutDir: c.Tool.DefaultOutDir,
		TailLines:     c.Tool.TailLines,
		Log:           c.LoggerConfig().File,
	}
}

// HistoryDSNs returns the configured sinks, or nil when history is disabled.
func (c *Config) HistoryDSNs() []string {
	if !c.History.Enabled {
		return nil
	}
	return append([]string(nil), c.History.DSNs...)
}

func (t ToolConfig) resolveEnv() ([]string, error) {
	e := env.New()
	for _, p := range t.EnvFiles {
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("tool.env_files: %w", err)
		}
		e.SetPairs(pairs)
	}
	e.SetPairs(t.Env)
	return e.Overrides(), nil
}

// LoadEnvFile parses a simple .env file and returns its "KEY=VALUE" entries in
// file order. Blank lines and lines starting with # are ignored; there is no
// quoting or export syntax.
func LoadEnvFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out = append(out, strings.TrimSpace(k)+"="+strings.TrimSpace(v))
	}
	return out, nil
}

func relativeTo(dir string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" && !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		out = append(out, p)
	}
	return out
}
