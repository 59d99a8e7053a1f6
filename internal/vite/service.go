package vite

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/loykin/vitesrv/internal/history"
	"github.com/loykin/vitesrv/internal/metrics"
	"github.com/loykin/vitesrv/internal/process"
	"github.com/loykin/vitesrv/internal/registry"
)

const (
	KindDev     = "dev"
	KindPreview = "preview"
	KindBuild   = "build"
)

// Service implements the vite operations on top of a Registry.
type Service struct {
	reg  *registry.Registry
	cfg  Config
	log  *slog.Logger
	hist *history.Recorder
	seq  atomic.Uint64
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithHistory records build outcomes. Server lifecycle events reach history
// through the registry hook, see HistoryHook.
func WithHistory(r *history.Recorder) Option {
	return func(s *Service) { s.hist = r }
}

func NewService(reg *registry.Registry, cfg Config, opts ...Option) *Service {
	s := &Service{reg: reg, cfg: cfg.withDefaults(), log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "vite")
	return s
}

func (s *Service) Registry() *registry.Registry { return s.reg }
func (s *Service) Config() Config               { return s.cfg }

// StartDev launches the dev server in in.Cwd and waits until it prints its URL.
func (s *Service) StartDev(ctx context.Context, in DevInput) (ServerOutput, error) {
	return s.startServer(ctx, KindDev, in.Cwd, devArgs(s.cfg.Args, in))
}

// Preview serves a previous build of in.Cwd and waits until it prints its URL.
func (s *Service) Preview(ctx context.Context, in PreviewInput) (ServerOutput, error) {
	return s.startServer(ctx, KindPreview, in.Cwd, previewArgs(s.cfg.Args, in))
}

func (s *Service) startServer(ctx context.Context, kind, cwd string, args []string) (ServerOutput, error) {
	p, err := process.Start(s.spec(kind, cwd, args))
	if err != nil {
		s.log.Error("spawn failed", "kind", kind, "cwd", cwd, "error", err)
		return ServerOutput{}, fmt.Errorf("spawn %s server: %w", kind, err)
	}
	id := s.reg.Register(p, "", registry.Info{Kind: kind, Cwd: cwd})
	url, err := s.reg.WaitForReady(ctx, id, s.cfg.ReadyTimeout)
	if err != nil {
		return ServerOutput{}, &ServerError{Kind: kind, ServerID: id, PID: p.PID(), Tail: p.Tail(s.cfg.TailLines), Err: err}
	}
	return ServerOutput{ServerID: id, URL: url, PID: p.PID()}, nil
}

// Build runs a one-shot production build and waits for it to finish. A
// cancelled ctx sends SIGTERM to the build and returns ctx.Err().
func (s *Service) Build(ctx context.Context, in BuildInput) (BuildOutput, error) {
	start := time.Now()
	stderr := &syncBuffer{}
	spec := s.spec(KindBuild, in.Cwd, buildArgs(s.cfg.Args, in))
	spec.Stderr = stderr
	p, err := process.Start(spec)
	if err != nil {
		metrics.ObserveBuild("error", 0)
		s.log.Error("spawn failed", "kind", KindBuild, "cwd", in.Cwd, "error", err)
		return BuildOutput{}, fmt.Errorf("spawn build: %w", err)
	}
	s.log.Info("build started", "cwd", in.Cwd, "pid", p.PID())

	select {
	case <-p.Done():
	case <-ctx.Done():
		_ = p.Signal(syscall.SIGTERM)
		metrics.ObserveBuild("cancelled", time.Since(start).Seconds())
		s.log.Warn("build cancelled", "cwd", in.Cwd, "pid", p.PID(), "error", ctx.Err())
		return BuildOutput{}, ctx.Err()
	}

	elapsed := time.Since(start)
	rec := history.Record{PID: p.PID(), Kind: KindBuild, Cwd: in.Cwd, ExitCode: p.ExitCode()}
	if code := p.ExitCode(); code != 0 {
		bf := &BuildFailedError{Code: code, Stderr: stderr.String()}
		metrics.ObserveBuild("failed", elapsed.Seconds())
		s.log.Warn("build failed", "cwd", in.Cwd, "exit_code", code, "duration", elapsed.Round(time.Millisecond))
		rec.Error = bf.Error()
		s.hist.Record(ctx, history.Event{Type: history.EventBuildFailed, Record: rec})
		return BuildOutput{}, bf
	}

	out := BuildOutput{Success: true, OutDir: resolveOutDir(in.Cwd, in.OutDir, s.cfg.DefaultOutDir)}
	metrics.ObserveBuild("success", elapsed.Seconds())
	s.log.Info("build finished", "cwd", in.Cwd, "out_dir", out.OutDir, "duration", elapsed.Round(time.Millisecond))
	s.hist.Record(ctx, history.Event{Type: history.EventBuildOK, Record: rec})
	return out, nil
}

// Stop sends SIGTERM to a registered server. Success is false both for
// unknown ids and for failed signal delivery.
func (s *Service) Stop(_ context.Context, in StopInput) (StopOutput, error) {
	return StopOutput{Success: s.reg.Stop(in.ServerID)}, nil
}

type ListInput struct{}

func (s *Service) List(_ context.Context, _ ListInput) (ListOutput, error) {
	return ListOutput{Servers: s.reg.List()}, nil
}

// Status reports a registered server with its recent output and resource usage.
func (s *Service) Status(_ context.Context, in StatusInput) (StatusOutput, error) {
	srv, ok := s.reg.Get(in.ServerID)
	if !ok {
		return StatusOutput{}, fmt.Errorf("%w: %s", registry.ErrNotFound, in.ServerID)
	}
	out := StatusOutput{Server: srv, Tail: []string{}}
	if p, ok := s.reg.Process(in.ServerID); ok {
		if t, ok := p.(interface{ Tail(int) []string }); ok {
			out.Tail = t.Tail(s.cfg.TailLines)
		}
	}
	if u, err := metrics.ProcessUsage(srv.PID); err == nil {
		out.Usage = &u
	} else {
		s.log.Debug("usage unavailable", "server_id", in.ServerID, "error", err)
	}
	return out, nil
}

func (s *Service) spec(kind, cwd string, args []string) process.Spec {
	return process.Spec{
		Name:    fmt.Sprintf("%s-%d", kind, s.seq.Add(1)),
		Command: s.cfg.Command,
		Args:    args,
		WorkDir: cwd,
		Env:     s.cfg.Env,
		Log:     s.cfg.Log,
	}
}

func devArgs(base []string, in DevInput) []string {
	args := append([]string(nil), base...)
	if in.Port != nil && *in.Port != 0 {
		args = append(args, "--port", strconv.Itoa(*in.Port))
	}
	if in.Host != nil && *in.Host != "" {
		args = append(args, "--host", *in.Host)
	}
	if in.Open != nil && *in.Open {
		args = append(args, "--open")
	}
	return args
}

func previewArgs(base []string, in PreviewInput) []string {
	args := append(append([]string(nil), base...), "preview")
	if in.Port != nil && *in.Port != 0 {
		args = append(args, "--port", strconv.Itoa(*in.Port))
	}
	return args
}

func buildArgs(base []string, in BuildInput) []string {
	args := append(append([]string(nil), base...), "build")
	if in.OutDir != nil && *in.OutDir != "" {
		args = append(args, "--outDir", *in.OutDir)
	}
	if in.Mode != nil && *in.Mode != "" {
		args = append(args, "--mode", *in.Mode)
	}
	return args
}

// resolveOutDir mirrors how the tool resolves --outDir against the project root.
func resolveOutDir(cwd string, outDir *string, def string) string {
	dir := def
	if outDir != nil && *outDir != "" {
		dir = *outDir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(cwd, dir)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
