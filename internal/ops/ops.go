// Package ops exposes the proxy's ambient health and metrics surface: a
// liveness probe and a Prometheus scrape endpoint, nothing more. This is
// deliberately not the excluded web control plane (§1) — no auth, no
// profile CRUD, just process supervision.
package ops

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

// Metrics holds the proxy's gauges/counters/histograms. All of them are
// registered and exported; SessionsConnected is the only one set, by
// cmd/proxy's periodic poll of the session manager, and nothing updates
// the others.
type Metrics struct {
	registry *prometheus.Registry

	SessionsConnected prometheus.Gauge
	SessionsAttached  prometheus.Gauge
	ReplayDuration    prometheus.Histogram
	BytesForwarded    *prometheus.CounterVec
	Reconnects        prometheus.Counter
}

// NewMetrics constructs and registers every metric on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		SessionsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxy_sessions_connected",
			Help: "Number of profiles with a live upstream session.",
		}),
		SessionsAttached: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxy_sessions_attached",
			Help: "Number of sessions currently viewed by a downstream client.",
		}),
		ReplayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "proxy_replay_duration_seconds",
			Help:    "Time to replay a mirrored world snapshot to a newly attached client.",
			Buckets: prometheus.DefBuckets,
		}),
		BytesForwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxy_bytes_forwarded_total",
			Help: "Bytes forwarded through the bridge, by direction.",
		}, []string{"direction"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_reconnects_total",
			Help: "Auto-reconnect attempts made by the session manager.",
		}),
	}
	reg.MustRegister(
		m.SessionsConnected,
		m.SessionsAttached,
		m.ReplayDuration,
		m.BytesForwarded,
		m.Reconnects,
	)
	return m
}

// HealthFunc reports whether the proxy is healthy enough to keep serving.
type HealthFunc func() bool

// Server serves /healthz and /metrics on a dedicated listen address,
// entirely separate from the downstream Minecraft listener.
type Server struct {
	listen  string
	log     *zap.Logger
	metrics *Metrics
	health  HealthFunc
}

// New constructs a Server. health may be nil, in which case /healthz
// always reports healthy.
func New(listen string, metrics *Metrics, health HealthFunc, log *zap.Logger) *Server {
	if log == nil {
		log = zap.L()
	}
	if health == nil {
		health = func() bool { return true }
	}
	return &Server{listen: listen, log: log, metrics: metrics, health: health}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	srv := &fasthttp.Server{
		Handler: func(c *fasthttp.RequestCtx) {
			switch string(c.Path()) {
			case "/healthz":
				s.handleHealthz(c)
			case "/metrics":
				metricsHandler(c)
			default:
				c.SetStatusCode(fasthttp.StatusNotFound)
			}
		},
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(s.listen) }()

	select {
	case <-ctx.Done():
		return srv.Shutdown()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ops: serve %s: %w", s.listen, err)
		}
		return nil
	}
}

func (s *Server) handleHealthz(c *fasthttp.RequestCtx) {
	if !s.health() {
		c.SetStatusCode(fasthttp.StatusServiceUnavailable)
		c.SetBodyString("unhealthy\n")
		return
	}
	c.SetStatusCode(fasthttp.StatusOK)
	c.SetBodyString("ok\n")
}
