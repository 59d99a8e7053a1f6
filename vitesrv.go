package vitesrv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/vitesrv/internal/config"
	"github.com/loykin/vitesrv/internal/history"
	"github.com/loykin/vitesrv/internal/history/factory"
	"github.com/loykin/vitesrv/internal/metrics"
	"github.com/loykin/vitesrv/internal/procedure"
	"github.com/loykin/vitesrv/internal/registry"
	iapi "github.com/loykin/vitesrv/internal/server"
	"github.com/loykin/vitesrv/internal/vite"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type ToolConfig = vite.Config

type Server = registry.Server

type (
	DevInput     = vite.DevInput
	PreviewInput = vite.PreviewInput
	BuildInput   = vite.BuildInput
	ServerOutput = vite.ServerOutput
	BuildOutput  = vite.BuildOutput
	StatusOutput = vite.StatusOutput
)

type HistorySink = history.Sink

type HistoryEvent = history.Event

// Error values callers match with errors.Is / errors.As.
var (
	ErrNotFound = registry.ErrNotFound
	ErrTimeout  = registry.ErrTimeout
	ErrExited   = registry.ErrExited
)

type (
	ExitedError      = registry.ExitedError
	BuildFailedError = vite.BuildFailedError
	ServerError      = vite.ServerError
)

// Host bundles the registry, the vite operations and their procedure table.
// It is a thin facade for embedding; create one per process and call
// Shutdown before exiting.
type Host struct {
	reg      *registry.Registry
	svc      *vite.Service
	d        *procedure.Dispatcher
	rec      *history.Recorder
	log      *slog.Logger
	metrics  bool
	basePath string
}

type hostOptions struct {
	log      *slog.Logger
	sinks    []HistorySink
	metrics  prometheus.Registerer
	basePath string
}

type Option func(*hostOptions)

func WithLogger(l *slog.Logger) Option {
	return func(o *hostOptions) { o.log = l }
}

// WithHistorySinks records lifecycle events to the given sinks.
func WithHistorySinks(sinks ...HistorySink) Option {
	return func(o *hostOptions) { o.sinks = append(o.sinks, sinks...) }
}

// WithMetrics registers the collectors with r and serves /metrics from the
// HTTP handler when r is the default registerer.
func WithMetrics(r prometheus.Registerer) Option {
	return func(o *hostOptions) { o.metrics = r }
}

// WithBasePath sets the API prefix used by Handler and NewHTTPServer.
func WithBasePath(p string) Option {
	return func(o *hostOptions) { o.basePath = p }
}

// New creates a Host launching the tool described by tc.
func New(tc ToolConfig, opts ...Option) (*Host, error) {
	o := hostOptions{log: slog.Default(), basePath: "/api"}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.metrics != nil {
		if err := metrics.Register(o.metrics); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	var rec *history.Recorder
	if len(o.sinks) > 0 {
		rec = history.NewRecorder(o.log, o.sinks...)
	}
	reg := registry.New(
		registry.WithLogger(o.log),
		registry.WithEventHook(vite.HistoryHook(rec, o.log)),
	)
	svc := vite.NewService(reg, tc, vite.WithLogger(o.log), vite.WithHistory(rec))
	d := procedure.NewDispatcher()
	if err := d.Register(vite.Procedures(svc)...); err != nil {
		return nil, err
	}
	return &Host{
		reg:      reg,
		svc:      svc,
		d:        d,
		rec:      rec,
		log:      o.log,
		metrics:  o.metrics == prometheus.DefaultRegisterer,
		basePath: o.basePath,
	}, nil
}

// NewFromConfig builds the logger, metrics and history sinks described by c
// and returns a Host for its [tool] section.
func NewFromConfig(c *Config) (*Host, error) {
	if c == nil {
		return nil, errors.New("nil config")
	}
	log := c.LoggerConfig().NewSlogger()
	opts := []Option{WithLogger(log), WithBasePath(c.Server.BasePath)}
	if c.Metrics.Enabled {
		opts = append(opts, WithMetrics(prometheus.DefaultRegisterer))
	}
	if dsns := c.HistoryDSNs(); len(dsns) > 0 {
		sinks, err := factory.NewSinks(dsns)
		if err != nil {
			return nil, fmt.Errorf("history sinks: %w", err)
		}
		opts = append(opts, WithHistorySinks(sinks...))
		h, err := New(c.ViteConfig(), opts...)
		if err != nil {
			_ = history.NewRecorder(log, sinks...).Close()
			return nil, err
		}
		return h, nil
	}
	return New(c.ViteConfig(), opts...)
}

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

func DefaultConfig() (*Config, error) { return cfg.Default() }

func (h *Host) Logger() *slog.Logger { return h.log }

func (h *Host) StartDev(ctx context.Context, in DevInput) (ServerOutput, error) {
	return h.svc.StartDev(ctx, in)
}

func (h *Host) Preview(ctx context.Context, in PreviewInput) (ServerOutput, error) {
	return h.svc.Preview(ctx, in)
}

func (h *Host) Build(ctx context.Context, in BuildInput) (BuildOutput, error) {
	return h.svc.Build(ctx, in)
}

// Stop sends SIGTERM to the server and forgets it. Unknown ids return false.
func (h *Host) Stop(serverID string) bool { return h.reg.Stop(serverID) }

func (h *Host) List() []Server { return h.reg.List() }

func (h *Host) Status(ctx context.Context, serverID string) (StatusOutput, error) {
	return h.svc.Status(ctx, vite.StatusInput{ServerID: serverID})
}

// Call invokes a procedure by name with raw JSON input, e.g. Call(ctx, "vite.list", nil).
func (h *Host) Call(ctx context.Context, name string, raw []byte) (any, error) {
	return h.d.Call(ctx, name, raw)
}

// Handler returns the API as an http.Handler for mounting in another server.
func (h *Host) Handler() http.Handler {
	return iapi.NewRouter(h.d, h.basePath, h.routerOptions()...).Handler()
}

// NewHTTPServer returns an unstarted http.Server exposing the API on addr.
func (h *Host) NewHTTPServer(addr string) *http.Server {
	return iapi.NewServer(addr, h.basePath, h.d, h.routerOptions()...)
}

func (h *Host) routerOptions() []iapi.Option {
	opts := []iapi.Option{iapi.WithLogger(h.log)}
	if h.metrics {
		opts = append(opts, iapi.WithMetrics(metrics.Handler()))
	} else {
		opts = append(opts, iapi.WithMetrics(nil))
	}
	return opts
}

// Shutdown terminates every registered server, waits for them until ctx is
// done and closes the history sinks.
func (h *Host) Shutdown(ctx context.Context) error {
	err := h.reg.Shutdown(ctx)
	return errors.Join(err, h.rec.Close())
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
