package vitesrv

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const fakeTool = `#!/bin/sh
[ "$1" = build ] && { echo built; exit 0; }
[ -n "$FAKE_FAIL" ] && { echo "broken config" >&2; exit 3; }
echo "  Local:   http://localhost:5173/"
exec sleep 30
`

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

type memSink struct {
	mu     sync.Mutex
	events []HistoryEvent
	closed bool
}

func (m *memSink) Send(_ context.Context, e HistoryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func newHost(t *testing.T, env []string, opts ...Option) (*Host, string) {
	t.Helper()
	requireUnix(t)
	dir := t.TempDir()
	script := filepath.Join(dir, "vite.sh")
	if err := os.WriteFile(script, []byte(fakeTool), 0o755); err != nil {
		t.Fatal(err)
	}
	h, err := New(ToolConfig{Command: "sh", Args: []string{script}, Env: env, ReadyTimeout: 5 * time.Second}, opts...)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return h, dir
}

func TestHostDevStatusStop(t *testing.T) {
	sink := &memSink{}
	h, dir := newHost(t, nil, WithHistorySinks(sink))
	ctx := context.Background()

	out, err := h.StartDev(ctx, DevInput{Cwd: dir})
	if err != nil {
		t.Fatalf("start dev: %v", err)
	}
	if out.URL != "http://localhost:5173/" || out.PID <= 0 {
		t.Fatalf("unexpected output %+v", out)
	}
	if l := h.List(); len(l) != 1 || l[0].ID != out.ServerID {
		t.Fatalf("list = %+v", l)
	}
	st, err := h.Status(ctx, out.ServerID)
	if err != nil || st.Server.URL != out.URL {
		t.Fatalf("status: %+v %v", st, err)
	}
	if !h.Stop(out.ServerID) {
		t.Fatal("stop should succeed")
	}
	if h.Stop(out.ServerID) {
		t.Fatal("second stop should report false")
	}
	if _, err := h.Status(ctx, out.ServerID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	ctxS, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.Shutdown(ctxS); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if !sink.closed || len(sink.events) < 3 {
		t.Fatalf("history not recorded/closed: closed=%v events=%d", sink.closed, len(sink.events))
	}
}

func TestHostErrorsAreExported(t *testing.T) {
	h, dir := newHost(t, []string{"FAKE_FAIL=1"})
	_, err := h.StartDev(context.Background(), DevInput{Cwd: dir})
	var ee *ExitedError
	if !errors.As(err, &ee) || ee.Code != 3 || !errors.Is(err, ErrExited) {
		t.Fatalf("expected exit code 3, got %v", err)
	}
	var se *ServerError
	if !errors.As(err, &se) || se.ServerID == "" {
		t.Fatalf("expected ServerError with id, got %v", err)
	}
	b, err := h.Build(context.Background(), BuildInput{Cwd: dir})
	if err != nil || !b.Success || b.OutDir != filepath.Join(dir, "dist") {
		t.Fatalf("build: %+v %v", b, err)
	}
}

func TestHostHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newHost(t, nil, WithBasePath("/v1"))
	ts := httptest.NewServer(h.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/vite/list", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var out struct {
		Servers []Server `json:"servers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %v", resp.StatusCode, err)
	}
	if len(out.Servers) != 0 {
		t.Fatalf("expected no servers, got %+v", out.Servers)
	}

	mresp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	_ = mresp.Body.Close()
	if mresp.StatusCode != http.StatusNotFound {
		t.Fatalf("metrics should be off without WithMetrics, got %d", mresp.StatusCode)
	}

	raw, err := h.Call(context.Background(), "vite.list", nil)
	if err != nil || raw == nil {
		t.Fatalf("call: %v %v", raw, err)
	}
}

func TestHostMetricsServed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newHost(t, nil, WithMetrics(prometheus.DefaultRegisterer))
	srv := h.NewHTTPServer("127.0.0.1:0")
	ts := httptest.NewServer(srv.Handler)
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
}

func TestNewFromConfigDefaults(t *testing.T) {
	c, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	c.Metrics.Enabled = false
	h, err := NewFromConfig(c)
	if err != nil {
		t.Fatalf("new from config: %v", err)
	}
	if h.basePath != "/api" || h.metrics {
		t.Fatalf("unexpected host %+v", h)
	}
	if _, err := NewFromConfig(nil); err == nil {
		t.Fatal("nil config should fail")
	}
}

func TestNewFromConfigHistorySQLite(t *testing.T) {
	c, err := DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	c.History.Enabled = true
	c.History.DSNs = []string{"sqlite://" + filepath.Join(t.TempDir(), "h.db")}
	h, err := NewFromConfig(c)
	if err != nil {
		t.Fatalf("new from config: %v", err)
	}
	if h.rec.Len() != 1 {
		t.Fatalf("expected one sink, got %d", h.rec.Len())
	}
	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
