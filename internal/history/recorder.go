package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultSendTimeout bounds a single fan-out of one event.
	DefaultSendTimeout = 5 * time.Second
	// DefaultQueueSize is the number of events buffered ahead of the sinks.
	DefaultQueueSize = 256
)

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("history recorder closed")

type job struct {
	ctx     context.Context
	event   Event
	flushed chan struct{}
}

// Recorder fans events out to a set of sinks from a single background
// worker, so Record never waits on sink I/O. Events reach every sink in the
// order they were recorded. A nil *Recorder is valid and drops everything.
// Send failures are logged and never returned to callers.
type Recorder struct {
	mu      sync.RWMutex
	sinks   []Sink
	timeout time.Duration
	log     *slog.Logger

	// state guards queue and closed; it is never held while sinks run.
	state  sync.RWMutex
	queue  chan job
	closed bool
	done   chan struct{}
}

func NewRecorder(log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	r := &Recorder{
		sinks:   append([]Sink(nil), sinks...),
		timeout: DefaultSendTimeout,
		log:     log.With("component", "history"),
		queue:   make(chan job, DefaultQueueSize),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// SetSinks replaces the configured sinks.
func (r *Recorder) SetSinks(sinks ...Sink) {
	r.mu.Lock()
	r.sinks = append([]Sink(nil), sinks...)
	r.mu.Unlock()
}

func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Record queues e for every sink, stamping OccurredAt when unset. It does not
// block: when the queue is full the event is dropped with a warning.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if r == nil || r.Len() == 0 {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	r.state.RLock()
	defer r.state.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- job{ctx: context.WithoutCancel(ctx), event: e}:
	default:
		r.log.Warn("history queue full, event dropped", "event", e.Type, "server_id", e.Record.ServerID)
	}
}

// Flush waits until every event recorded before the call reached the sinks.
func (r *Recorder) Flush(ctx context.Context) error {
	if r == nil {
		return nil
	}
	flushed := make(chan struct{})
	if err := r.enqueue(ctx, job{flushed: flushed}); err != nil {
		return err
	}
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) enqueue(ctx context.Context, j job) error {
	r.state.RLock()
	defer r.state.RUnlock()
	if r.closed {
		return ErrClosed
	}
	select {
	case r.queue <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for j := range r.queue {
		if j.flushed != nil {
			close(j.flushed)
			continue
		}
		r.send(j.ctx, j.event)
	}
}

func (r *Recorder) send(ctx context.Context, e Event) {
	r.mu.RLock()
	sinks := append([]Sink(nil), r.sinks...)
	r.mu.RUnlock()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	for _, s := range sinks {
		if err := s.Send(ctx, e); err != nil {
			r.log.Warn("history send failed", "event", e.Type, "server_id", e.Record.ServerID, "error", err)
		}
	}
}

// Close delivers the queued events, stops the worker and closes every sink
// that implements io.Closer.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.state.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.state.Unlock()
	<-r.done

	r.mu.Lock()
	sinks := r.sinks
	r.sinks = nil
	r.mu.Unlock()
	var errs []error
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
