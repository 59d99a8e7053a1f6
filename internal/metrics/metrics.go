package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serversRegistered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitesrv",
			Subsystem: "registry",
			Name:      "registered_total",
			Help:      "Number of server processes registered.",
		}, []string{"kind"},
	)
	serversActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vitesrv",
			Subsystem: "registry",
			Name:      "servers",
			Help:      "Current number of registered server processes.",
		},
	)
	serverExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitesrv",
			Subsystem: "registry",
			Name:      "exits_total",
			Help:      "Number of registered server processes that exited on their own.",
		}, []string{"kind"},
	)
	serverStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitesrv",
			Subsystem: "registry",
			Name:      "stops_total",
			Help:      "Stop requests by result (stopped, not_found, signal_failed).",
		}, []string{"result"},
	)
	readyWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vitesrv",
			Subsystem: "registry",
			Name:      "ready_wait_seconds",
			Help:      "Time spent waiting for readiness, by outcome (ready, timeout, exited, cancelled).",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"outcome"},
	)
	builds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitesrv",
			Subsystem: "build",
			Name:      "runs_total",
			Help:      "Number of one-shot builds by result (success, failed, error).",
		}, []string{"result"},
	)
	buildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vitesrv",
			Subsystem: "build",
			Name:      "duration_seconds",
			Help:      "Wall time of one-shot builds.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
	procedureCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitesrv",
			Subsystem: "procedure",
			Name:      "calls_total",
			Help:      "Dispatched procedure calls by procedure and status.",
		}, []string{"procedure", "status"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serversRegistered, serversActive, serverExits, serverStops, readyWait, builds, buildDuration, procedureCalls}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves metrics of the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics of a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// The helpers below no-op until Register has been called.

func IncRegistered(kind string) {
	if regOK.Load() {
		serversRegistered.WithLabelValues(kind).Inc()
		serversActive.Inc()
	}
}

func DecActive() {
	if regOK.Load() {
		serversActive.Dec()
	}
}

func IncExit(kind string) {
	if regOK.Load() {
		serverExits.WithLabelValues(kind).Inc()
	}
}

func IncStop(result string) {
	if regOK.Load() {
		serverStops.WithLabelValues(result).Inc()
	}
}

func ObserveReadyWait(outcome string, seconds float64) {
	if regOK.Load() {
		readyWait.WithLabelValues(outcome).Observe(seconds)
	}
}

func ObserveBuild(result string, seconds float64) {
	if regOK.Load() {
		builds.WithLabelValues(result).Inc()
		if seconds > 0 {
			buildDuration.Observe(seconds)
		}
	}
}

func IncProcedureCall(procedure, status string) {
	if regOK.Load() {
		procedureCalls.WithLabelValues(procedure, status).Inc()
	}
}
