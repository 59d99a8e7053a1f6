package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/loykin/vitesrv/internal/metrics"
)

// DefaultReadyTimeout applies when WaitForReady is called with timeout <= 0.
const DefaultReadyTimeout = 30 * time.Second

// Process is the handle the registry takes ownership of on Register.
// *process.Process implements it.
type Process interface {
	PID() int
	Signal(sig os.Signal) error
	// Done is closed after the process exited and its output was delivered.
	Done() <-chan struct{}
	ExitCode() int
	Subscribe() (backlog []string, lines <-chan string, cancel func())
}

// Info carries descriptive fields recorded alongside a registration.
type Info struct {
	Kind string // "dev" or "preview"
	Cwd  string
}

// Server is a snapshot of one registry entry.
type Server struct {
	ID        string    `json:"serverId"`
	PID       int       `json:"pid"`
	Kind      string    `json:"kind,omitempty"`
	Cwd       string    `json:"cwd,omitempty"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"startedAt"`
}

// StopResult distinguishes the outcomes that Stop folds into false.
type StopResult int

const (
	Stopped StopResult = iota
	StopNotFound
	StopSignalFailed
)

func (r StopResult) String() string {
	switch r {
	case Stopped:
		return "stopped"
	case StopNotFound:
		return "not_found"
	case StopSignalFailed:
		return "signal_failed"
	default:
		return "unknown"
	}
}

type entry struct {
	id        string
	proc      Process
	info      Info
	startedAt time.Time

	mu  sync.Mutex
	url string
}

// setURL stores u unless a URL is already present and returns the stored value.
func (e *entry) setURL(u string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.url == "" {
		e.url = u
	}
	return e.url
}

func (e *entry) getURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.url
}

func (e *entry) snapshot() Server {
	return Server{
		ID:        e.id,
		PID:       e.proc.PID(),
		Kind:      e.info.Kind,
		Cwd:       e.info.Cwd,
		URL:       e.getURL(),
		StartedAt: e.startedAt,
	}
}

// Registry tracks spawned server processes under generated ids. It owns each
// registered process: it is the only reader of its output and the only sender
// of signals. Create one per host with New and call Shutdown on exit.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	counter atomic.Uint64

	prefix string
	now    func() time.Time
	log    *slog.Logger
	hook   func(Event)
}

type Option func(*Registry)

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithEventHook installs a callback invoked synchronously for every lifecycle event.
func WithEventHook(fn func(Event)) Option {
	return func(r *Registry) { r.hook = fn }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithIDPrefix changes the "vite" prefix of generated ids.
func WithIDPrefix(p string) Option {
	return func(r *Registry) {
		if p != "" {
			r.prefix = p
		}
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		prefix:  "vite",
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With("component", "registry")
	return r
}

// Register stores p under a new id and starts observing its exit. It never fails.
func (r *Registry) Register(p Process, initialURL string, info Info) string {
	now := r.now()
	id := fmt.Sprintf("%s-%d-%d", r.prefix, now.UnixMilli(), r.counter.Add(1))
	e := &entry{id: id, proc: p, info: info, startedAt: now, url: initialURL}

	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()

	metrics.IncRegistered(info.Kind)
	r.log.Info("server registered", "server_id", id, "pid", p.PID(), "kind", info.Kind, "cwd", info.Cwd)
	r.emit(Event{Type: EventRegistered, Server: e.snapshot()})

	go r.observeExit(e)
	return id
}

func (r *Registry) observeExit(e *entry) {
	<-e.proc.Done()
	r.exited(e, e.proc.ExitCode())
}

// exited removes e after its process ended. Only the first caller records it.
func (r *Registry) exited(e *entry, code int) {
	if !r.remove(e) {
		return
	}
	metrics.IncExit(e.info.Kind)
	r.log.Info("server exited", "server_id", e.id, "pid", e.proc.PID(), "exit_code", code)
	r.emit(Event{Type: EventExited, Server: e.snapshot(), ExitCode: code})
}

// remove deletes e if it is still the entry registered under its id.
func (r *Registry) remove(e *entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[e.id]; !ok || cur != e {
		return false
	}
	delete(r.entries, e.id)
	metrics.DecActive()
	return true
}

func (r *Registry) lookup(id string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

// Get returns a snapshot of the entry registered under id.
func (r *Registry) Get(id string) (Server, bool) {
	e, ok := r.lookup(id)
	if !ok {
		return Server{}, false
	}
	return e.snapshot(), true
}

// Process returns the handle registered under id.
func (r *Registry) Process(id string) (Process, bool) {
	e, ok := r.lookup(id)
	if !ok {
		return nil, false
	}
	return e.proc, true
}

// List returns all entries ordered by registration time.
func (r *Registry) List() []Server {
	r.mu.Lock()
	es := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		es = append(es, e)
	}
	r.mu.Unlock()

	out := make([]Server, 0, len(es))
	for _, e := range es {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len reports the number of registered entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stop sends SIGTERM to the process registered under id. It returns true when
// the signal was accepted for delivery and the entry was removed; it does not
// wait for the process to exit and never escalates to SIGKILL. Unknown ids and
// failed deliveries both return false; StopDetailed tells them apart.
func (r *Registry) Stop(id string) bool {
	return r.StopDetailed(id) == Stopped
}

func (r *Registry) StopDetailed(id string) StopResult {
	e, ok := r.lookup(id)
	if !ok {
		metrics.IncStop(StopNotFound.String())
		return StopNotFound
	}
	if err := e.proc.Signal(syscall.SIGTERM); err != nil {
		// the exit observer removes the entry once the process is gone
		r.log.Warn("stop signal failed", "server_id", id, "pid", e.proc.PID(), "error", err)
		metrics.IncStop(StopSignalFailed.String())
		return StopSignalFailed
	}
	r.remove(e)
	metrics.IncStop(Stopped.String())
	r.log.Info("server stopped", "server_id", id, "pid", e.proc.PID())
	r.emit(Event{Type: EventStopped, Server: e.snapshot()})
	return Stopped
}

// WaitForReady blocks until the process under id prints its "Local:" URL,
// exits, or timeout elapses, whichever comes first. A URL already recorded is
// returned immediately. Cancelling ctx abandons the wait; like a timeout it
// leaves the process running and registered.
func (r *Registry) WaitForReady(ctx context.Context, id string, timeout time.Duration) (string, error) {
	e, ok := r.lookup(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if u := e.getURL(); u != "" {
		return u, nil
	}
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	start := time.Now()
	backlog, lines, cancel := e.proc.Subscribe()
	defer cancel()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for _, line := range backlog {
		if u, ok := MatchReadyURL(line); ok {
			return r.ready(e, u, start), nil
		}
	}
	for {
		select {
		case line := <-lines:
			if u, ok := MatchReadyURL(line); ok {
				return r.ready(e, u, start), nil
			}
		case <-e.proc.Done():
			code := e.proc.ExitCode()
			metrics.ObserveReadyWait("exited", time.Since(start).Seconds())
			r.log.Warn("server exited before ready", "server_id", id, "exit_code", code)
			r.emit(Event{Type: EventExitedEarly, Server: e.snapshot(), ExitCode: code})
			// the entry must be gone before the caller sees the error
			r.exited(e, code)
			return "", &ExitedError{Code: code}
		case <-timer.C:
			metrics.ObserveReadyWait("timeout", time.Since(start).Seconds())
			r.log.Warn("server readiness timed out", "server_id", id, "timeout", timeout)
			r.emit(Event{Type: EventTimeout, Server: e.snapshot()})
			return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
		case <-ctx.Done():
			metrics.ObserveReadyWait("cancelled", time.Since(start).Seconds())
			return "", ctx.Err()
		}
	}
}

func (r *Registry) ready(e *entry, u string, start time.Time) string {
	u = e.setURL(u)
	metrics.ObserveReadyWait("ready", time.Since(start).Seconds())
	r.log.Info("server ready", "server_id", e.id, "url", u, "after", time.Since(start).Round(time.Millisecond))
	r.emit(Event{Type: EventReady, Server: e.snapshot()})
	return u
}

// Shutdown signals every registered process, empties the table and waits for
// the processes to exit until ctx is done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	es := make([]*entry, 0, len(r.entries))
	for id, e := range r.entries {
		es = append(es, e)
		delete(r.entries, id)
		metrics.DecActive()
	}
	r.mu.Unlock()

	for _, e := range es {
		if err := e.proc.Signal(syscall.SIGTERM); err != nil {
			r.log.Debug("shutdown signal failed", "server_id", e.id, "error", err)
			continue
		}
		r.emit(Event{Type: EventStopped, Server: e.snapshot()})
	}
	for _, e := range es {
		select {
		case <-e.proc.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s to exit: %w", e.id, ctx.Err())
		}
	}
	if len(es) > 0 {
		r.log.Info("registry shut down", "stopped", len(es))
	}
	return nil
}

func (r *Registry) emit(ev Event) {
	if r.hook == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = r.now()
	}
	r.hook(ev)
}
