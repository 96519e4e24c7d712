package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the service exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	decisionsTotal      *prometheus.CounterVec
	auditAppendFailures prometheus.Counter
	adminCommandsTotal  *prometheus.CounterVec

	viewerSessionsOpen   prometheus.Gauge
	viewerInteractions   *prometheus.CounterVec
	viewerSessionsClosed *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataroom_access_decisions_total",
			Help: "Access decisions by requested action, outcome and reason code.",
		}, []string{"action", "outcome", "reason"}),
		auditAppendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dataroom_audit_append_failures_total",
			Help: "Audit appends that failed after retries; each one failed a request closed.",
		}),
		adminCommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataroom_admin_commands_total",
			Help: "Administrative lifecycle commands by command and result.",
		}, []string{"command", "result"}),

		viewerSessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dataroom_viewer_sessions_open",
			Help: "Currently open restricted-viewer sessions.",
		}),
		viewerInteractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataroom_viewer_interactions_total",
			Help: "Audited viewer interactions by kind.",
		}, []string{"kind"}),
		viewerSessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataroom_viewer_sessions_closed_total",
			Help: "Viewer sessions closed, by cause.",
		}, []string{"cause"}),
	}

	m.reg.MustRegister(
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.decisionsTotal, m.auditAppendFailures, m.adminCommandsTotal,
		m.viewerSessionsOpen, m.viewerInteractions, m.viewerSessionsClosed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Middleware records RPS, latency and in-flight requests per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		m.httpInFlight.Inc()
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpInFlight.Dec()
	}
}

func (m *Metrics) ObserveDecision(action, outcome, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.decisionsTotal.WithLabelValues(action, outcome, reason).Inc()
}

func (m *Metrics) AuditAppendFailed() {
	if m == nil {
		return
	}
	m.auditAppendFailures.Inc()
}

func (m *Metrics) ObserveAdminCommand(command, result string) {
	if m == nil {
		return
	}
	m.adminCommandsTotal.WithLabelValues(command, result).Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.viewerSessionsOpen.Inc()
}

func (m *Metrics) SessionClosed(cause string) {
	if m == nil {
		return
	}
	m.viewerSessionsOpen.Dec()
	m.viewerSessionsClosed.WithLabelValues(cause).Inc()
}

func (m *Metrics) ObserveInteraction(kind string) {
	if m == nil {
		return
	}
	m.viewerInteractions.WithLabelValues(kind).Inc()
}
