package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/vitesrv/internal/logger"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestDefault(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if c.Server.Listen != "127.0.0.1:7070" || c.Server.BasePath != "/api" {
		t.Fatalf("server defaults: %+v", c.Server)
	}
	if c.Tool.Command != "npx" || len(c.Tool.Args) != 1 || c.Tool.Args[0] != "vite" {
		t.Fatalf("tool defaults: %+v", c.Tool)
	}
	if c.Tool.ReadyTimeout != 30*time.Second || c.Tool.DefaultOutDir != "dist" {
		t.Fatalf("tool defaults: %+v", c.Tool)
	}
	if c.Log.Level != logger.LevelInfo || c.Log.Format != logger.FormatText || !c.Metrics.Enabled || c.History.Enabled {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.HistoryDSNs() != nil {
		t.Fatal("history disabled by default")
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tool.env", "# shared\nNODE_OPTIONS=--max-old-space-size=4096\nVITE_API=http://localhost:8080\n")
	p := writeFile(t, dir, "vitesrv.toml", `
[server]
listen = "0.0.0.0:9090"
base_path = "/rpc"

[tool]
command = "pnpm"
args = ["exec", "vite"]
env_files = ["tool.env"]
env = ["VITE_API=http://api.internal", "API_DOCS=${VITE_API}/docs"]
ready_timeout = "45s"
default_out_dir = "build"

[log]
level = "debug"
format = "json"
output_dir = "/var/log/vitesrv"
max_size_mb = 50

[metrics]
enabled = false

[history]
enabled = true
dsns = ["sqlite:///tmp/vitesrv.db"]
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Listen != "0.0.0.0:9090" || c.Server.BasePath != "/rpc" {
		t.Fatalf("server: %+v", c.Server)
	}
	vc := c.ViteConfig()
	if vc.Command != "pnpm" || strings.Join(vc.Args, " ") != "exec vite" || vc.ReadyTimeout != 45*time.Second || vc.DefaultOutDir != "build" {
		t.Fatalf("vite config: %+v", vc)
	}
	wantEnv := []string{
		"API_DOCS=http://api.internal/docs",
		"NODE_OPTIONS=--max-old-space-size=4096",
		"VITE_API=http://api.internal",
	}
	if strings.Join(vc.Env, "|") != strings.Join(wantEnv, "|") {
		t.Fatalf("env = %v, want %v", vc.Env, wantEnv)
	}
	if vc.Log.Dir != "/var/log/vitesrv" || vc.Log.MaxSizeMB != 50 {
		t.Fatalf("output log: %+v", vc.Log)
	}
	lc := c.LoggerConfig()
	if lc.Slog.Level != logger.LevelDebug || lc.Slog.Format != logger.FormatJSON {
		t.Fatalf("logger: %+v", lc.Slog)
	}
	if c.Metrics.Enabled {
		t.Fatal("metrics should be disabled")
	}
	if d := c.HistoryDSNs(); len(d) != 1 || d[0] != "sqlite:///tmp/vitesrv.db" {
		t.Fatalf("history dsns = %v", d)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VITESRV_SERVER_LISTEN", "127.0.0.1:8181")
	t.Setenv("VITESRV_TOOL_READY_TIMEOUT", "5s")
	t.Setenv("VITESRV_LOG_LEVEL", "warn")

	dir := t.TempDir()
	p := writeFile(t, dir, "c.toml", "[server]\nlisten = \"127.0.0.1:9999\"\n")
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Listen != "127.0.0.1:8181" {
		t.Fatalf("env should win over file, got %s", c.Server.Listen)
	}
	if c.Tool.ReadyTimeout != 5*time.Second || c.Log.Level != logger.LevelWarn {
		t.Fatalf("env overrides not applied: %+v %+v", c.Tool, c.Log)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad base path", "[server]\nbase_path = \"api\"\n", "base_path"},
		{"empty command", "[tool]\ncommand = \" \"\n", "tool.command"},
		{"bad timeout", "[tool]\nready_timeout = \"-1s\"\n", "ready_timeout"},
		{"bad level", "[log]\nlevel = \"loud\"\n", "log.level"},
		{"bad format", "[log]\nformat = \"xml\"\n", "log.format"},
		{"history without dsns", "[history]\nenabled = true\n", "history.dsns"},
		{"missing env file", "[tool]\nenv_files = [\"nope.env\"]\n", "env_files"},
		{"malformed toml", "[server\n", "read config"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeFile(t, dir, "c"+string(rune('a'+i))+".toml", tt.data)
			_, err := Load(p)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load error = %v, want mention of %q", err, tt.want)
			}
		})
	}
	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, ".env", "A=1\n#comment\n\nB = two\nnot-a-pair\n")
	pairs, err := LoadEnvFile(p)
	if err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if strings.Join(pairs, ",") != "A=1,B=two" {
		t.Fatalf("pairs = %v", pairs)
	}
}
