package vite

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/vitesrv/internal/history"
	"github.com/loykin/vitesrv/internal/procedure"
	"github.com/loykin/vitesrv/internal/registry"
)

const fakeTool = `#!/bin/sh
echo "args: $*"
mode=dev
[ "$1" = build ] && mode=build
[ "$1" = preview ] && mode=preview
port=5173
[ "$mode" = preview ] && port=4173
while [ $# -gt 0 ]; do
  case "$1" in
    --port) port="$2"; shift ;;
  esac
  shift
done
case "$FAKE_VITE" in
  fail) echo "error: could not resolve vite.config.ts" >&2; exit 2 ;;
  hang) exec sleep 30 ;;
esac
if [ "$mode" = build ]; then
  echo "building for production..."
  echo "(!) some chunks are larger than 500 kB" >&2
  exit 0
fi
printf '\n  VITE v5.4.0  ready in 120 ms\n\n  \033[32m➜\033[0m  Local:   http://localhost:%s/\n' "$port"
exec sleep 30
`

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh on Unix-like systems")
	}
}

type memSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (m *memSink) Send(_ context.Context, e history.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) types() []history.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc  *Service
	reg  *registry.Registry
	rec  *history.Recorder
	sink *memSink
	cwd  string
}

// events returns the history recorded so far, once the recorder drained.
func (f *fixture) events(t *testing.T) []history.EventType {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.rec.Flush(ctx); err != nil {
		t.Fatalf("flush history: %v", err)
	}
	return f.events(t)
}

func newFixture(t *testing.T, mode string, timeout time.Duration) *fixture {
	t.Helper()
	requireUnix(t)
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-vite.sh")
	if err := os.WriteFile(script, []byte(fakeTool), 0o755); err != nil {
		t.Fatal(err)
	}
	cwd := filepath.Join(dir, "project")
	if err := os.Mkdir(cwd, 0o755); err != nil {
		t.Fatal(err)
	}

	sink := &memSink{}
	rec := history.NewRecorder(nil, sink)
	reg := registry.New(registry.WithEventHook(HistoryHook(rec, nil)))
	svc := NewService(reg, Config{
		Command:      "sh",
		Args:         []string{script},
		Env:          []string{"FAKE_VITE=" + mode},
		ReadyTimeout: timeout,
	}, WithHistory(rec))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
		_ = rec.Close()
	})
	return &fixture{svc: svc, reg: reg, rec: rec, sink: sink, cwd: cwd}
}

func TestStartDevReadyAndStop(t *testing.T) {
	f := newFixture(t, "", 5*time.Second)
	ctx := context.Background()

	out, err := f.svc.StartDev(ctx, DevInput{Cwd: f.cwd, Port: ptr(5180)})
	if err != nil {
		t.Fatalf("StartDev: %v", err)
	}
	if out.URL != "http://localhost:5180/" || out.PID <= 0 || !strings.HasPrefix(out.ServerID, "vite-") {
		t.Fatalf("unexpected output %+v", out)
	}
	srv, ok := f.reg.Get(out.ServerID)
	if !ok || srv.URL != out.URL || srv.Kind != KindDev || srv.Cwd != f.cwd {
		t.Fatalf("registry entry = %+v, %v", srv, ok)
	}

	st, err := f.svc.Status(ctx, StatusInput{ServerID: out.ServerID})
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !containsLine(st.Tail, "Local:") || !containsLine(st.Tail, "--port 5180") {
		t.Fatalf("tail missing expected lines: %q", st.Tail)
	}

	list, _ := f.svc.List(ctx, ListInput{})
	if len(list.Servers) != 1 || list.Servers[0].ID != out.ServerID {
		t.Fatalf("List = %+v", list)
	}

	res, _ := f.svc.Stop(ctx, StopInput{ServerID: out.ServerID})
	if !res.Success {
		t.Fatal("Stop returned false")
	}
	if _, ok := f.reg.Get(out.ServerID); ok {
		t.Fatal("entry still present after stop")
	}
	res, _ = f.svc.Stop(ctx, StopInput{ServerID: out.ServerID})
	if res.Success {
		t.Fatal("second Stop returned true")
	}
	if _, err := f.svc.Status(ctx, StatusInput{ServerID: out.ServerID}); !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("Status after stop: %v", err)
	}

	got := f.events(t)
	if len(got) < 3 || got[0] != history.EventRegistered || got[1] != history.EventReady || got[2] != history.EventStopped {
		t.Fatalf("history events = %v", got)
	}
}

func TestPreviewDefaultPort(t *testing.T) {
	f := newFixture(t, "", 5*time.Second)
	out, err := f.svc.Preview(context.Background(), PreviewInput{Cwd: f.cwd})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if out.URL != "http://localhost:4173/" {
		t.Fatalf("url = %q", out.URL)
	}
	if srv, _ := f.reg.Get(out.ServerID); srv.Kind != KindPreview {
		t.Fatalf("kind = %q", srv.Kind)
	}
}

func TestStartDevExitedEarly(t *testing.T) {
	f := newFixture(t, "fail", 5*time.Second)
	_, err := f.svc.StartDev(context.Background(), DevInput{Cwd: f.cwd})
	var ee *registry.ExitedError
	if !errors.As(err, &ee) || ee.Code != 2 {
		t.Fatalf("expected ExitedError code 2, got %v", err)
	}
	var se *ServerError
	if !errors.As(err, &se) || se.Kind != KindDev {
		t.Fatalf("expected ServerError, got %T", err)
	}
	if !containsLine(se.Tail, "could not resolve") {
		t.Fatalf("tail lacks stderr: %q", se.Tail)
	}
	if _, ok := f.reg.Get(se.ServerID); ok {
		t.Fatal("exited server still registered")
	}
	if n := f.reg.Len(); n != 0 {
		t.Fatalf("len = %d after early exit", n)
	}
}

func TestStartDevTimeoutLeavesServerRunning(t *testing.T) {
	f := newFixture(t, "hang", 150*time.Millisecond)
	_, err := f.svc.StartDev(context.Background(), DevInput{Cwd: f.cwd})
	if !errors.Is(err, registry.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %T", err)
	}
	if _, ok := f.reg.Get(se.ServerID); !ok {
		t.Fatal("timed out server should stay registered")
	}
	if res, _ := f.svc.Stop(context.Background(), StopInput{ServerID: se.ServerID}); !res.Success {
		t.Fatal("Stop after timeout returned false")
	}
}

func TestStartDevSpawnFailure(t *testing.T) {
	f := newFixture(t, "", time.Second)
	_, err := f.svc.StartDev(context.Background(), DevInput{Cwd: filepath.Join(f.cwd, "missing")})
	if err == nil {
		t.Fatal("expected spawn error")
	}
	var se *ServerError
	if errors.As(err, &se) {
		t.Fatal("spawn failures must not be reported as readiness failures")
	}
	if f.reg.Len() != 0 {
		t.Fatal("failed spawn registered a server")
	}
}

func TestBuildSuccess(t *testing.T) {
	f := newFixture(t, "", time.Second)
	ctx := context.Background()

	out, err := f.svc.Build(ctx, BuildInput{Cwd: f.cwd})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !out.Success || out.OutDir != filepath.Join(f.cwd, "dist") {
		t.Fatalf("unexpected output %+v", out)
	}

	out, err = f.svc.Build(ctx, BuildInput{Cwd: f.cwd, OutDir: ptr("web"), Mode: ptr("staging")})
	if err != nil || out.OutDir != filepath.Join(f.cwd, "web") {
		t.Fatalf("Build(outDir) = %+v, %v", out, err)
	}
	if f.reg.Len() != 0 {
		t.Fatal("builds must not be registered")
	}
	got := f.events(t)
	if len(got) != 2 || got[0] != history.EventBuildOK {
		t.Fatalf("history events = %v", got)
	}
}

func TestBuildFailure(t *testing.T) {
	f := newFixture(t, "fail", time.Second)
	_, err := f.svc.Build(context.Background(), BuildInput{Cwd: f.cwd})
	var bf *BuildFailedError
	if !errors.As(err, &bf) {
		t.Fatalf("expected BuildFailedError, got %v", err)
	}
	if bf.Code != 2 || !strings.Contains(bf.Stderr, "could not resolve vite.config.ts") {
		t.Fatalf("unexpected failure %+v", bf)
	}
	if strings.Contains(bf.Stderr, "args:") {
		t.Fatal("stdout leaked into stderr capture")
	}
	if got := f.events(t); len(got) != 1 || got[0] != history.EventBuildFailed {
		t.Fatalf("history events = %v", got)
	}
}

func TestBuildCancelled(t *testing.T) {
	f := newFixture(t, "hang", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := f.svc.Build(ctx, BuildInput{Cwd: f.cwd}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestProceduresThroughDispatcher(t *testing.T) {
	f := newFixture(t, "", 5*time.Second)
	d := procedure.NewDispatcher()
	if err := d.Register(Procedures(f.svc)...); err != nil {
		t.Fatalf("Register: %v", err)
	}
	names := make([]string, 0)
	for _, p := range d.List() {
		names = append(names, p.Name)
	}
	want := []string{"vite.build", "vite.dev", "vite.list", "vite.preview", "vite.status", "vite.stop"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("procedures = %v", names)
	}
	dev, _ := d.Lookup("vite.dev")
	if dev.Meta.Shorts["port"] != "p" || dev.Meta.Shorts["host"] != "h" || dev.Meta.Args[0] != "cwd" {
		t.Fatalf("dev meta = %+v", dev.Meta)
	}

	ctx := context.Background()
	_, err := d.Call(ctx, "vite.dev", json.RawMessage(`{"port":5173}`))
	var ve *procedure.ValidationError
	if !errors.As(err, &ve) || ve.Issues[0].Path != "cwd" {
		t.Fatalf("expected cwd validation error, got %v", err)
	}
	if f.reg.Len() != 0 {
		t.Fatal("invalid input spawned a server")
	}

	raw, _ := json.Marshal(map[string]any{"cwd": f.cwd, "port": 5190})
	out, err := d.Call(ctx, "vite.dev", raw)
	if err != nil {
		t.Fatalf("vite.dev: %v", err)
	}
	so := out.(ServerOutput)
	stop, err := d.Call(ctx, "vite.stop", json.RawMessage(`{"serverId":"`+so.ServerID+`"}`))
	if err != nil || !stop.(StopOutput).Success {
		t.Fatalf("vite.stop = %v, %v", stop, err)
	}
	stop, _ = d.Call(ctx, "vite.stop", json.RawMessage(`{"serverId":"vite-0-0"}`))
	if stop.(StopOutput).Success {
		t.Fatal("stop of unknown id succeeded")
	}
}

func containsLine(lines []string, sub string) bool {
	for _, l := range lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}
