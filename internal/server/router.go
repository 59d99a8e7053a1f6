package server

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/vitesrv/internal/metrics"
	"github.com/loykin/vitesrv/internal/procedure"
)

// Router provides embeddable HTTP handlers for a procedure dispatcher.
// Endpoints:
//
//	GET  {basePath}/procedures    procedure metadata
//	POST {basePath}/{a}/{b}       call procedure "a.b", body is its JSON input
//	GET  /metrics                 Prometheus exposition, when enabled
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	d        *procedure.Dispatcher
	basePath string
	log      *slog.Logger
	metrics  http.Handler
}

type Option func(*Router)

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics serves h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(r *Router) { r.metrics = h }
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/procedures, /api/vite/dev, ...
func NewRouter(d *procedure.Dispatcher, basePath string, opts ...Option) *Router {
	r := &Router{d: d, basePath: sanitizeBase(basePath), log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With("component", "http")
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), r.logRequests)
	group := g.Group(r.basePath)
	group.GET("/procedures", r.handleList)
	group.POST("/*path", r.handleCall)
	if r.metrics != nil {
		g.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer returns an http.Server for the dispatcher on addr with metrics
// served from the default registry. The caller starts and shuts it down.
// There is no write timeout: dev and preview calls block until the server
// is ready and builds until they finish.
func NewServer(addr, basePath string, d *procedure.Dispatcher, opts ...Option) *http.Server {
	opts = append([]Option{WithMetrics(metrics.Handler())}, opts...)
	r := NewRouter(d, basePath, opts...)
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.d.List())
}

func (r *Router) handleCall(c *gin.Context) {
	name := procedureName(c.Param("path"))
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, ErrorResponse{Error: "read body: " + err.Error()})
		return
	}
	out, err := r.d.Call(c.Request.Context(), name, raw)
	if err != nil {
		status := HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			r.log.Error("procedure failed", "procedure", name, "status", status, "error", err)
		} else {
			r.log.Info("procedure rejected", "procedure", name, "status", status, "error", err)
		}
		writeJSON(c, status, errorResponse(err))
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	r.log.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start).Round(time.Microsecond),
	)
}
