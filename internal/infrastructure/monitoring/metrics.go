package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every Record/Set method is safe on
// a nil *Metrics so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionEvents  *prometheus.CounterVec
	CommitDuration prometheus.Histogram

	// Registry metrics
	PackagesKnown   prometheus.Gauge
	SharedLibraries prometheus.Gauge
	Installs        *prometheus.CounterVec
	Uninstalls      *prometheus.CounterVec

	// Archive metrics
	ArchiveOps *prometheus.CounterVec

	// Verification metrics
	VerificationsPending prometheus.Gauge
	VerificationOutcomes *prometheus.CounterVec
	VerificationDuration prometheus.Histogram

	// Broadcast metrics
	Broadcasts        *prometheus.CounterVec
	WebhookDeliveries *prometheus.CounterVec
	WSConnections     prometheus.Gauge
	WSMessages        *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	snapshot MetricsSnapshot
	mu       sync.RWMutex
	stop     chan struct{}
	stopOnce sync.Once
}

// MetricsSnapshot holds current values for the JSON API.
type MetricsSnapshot struct {
	TotalRequests  int64   `json:"total_requests"`
	TotalErrors    int64   `json:"total_errors"`
	ActiveSessions int64   `json:"active_sessions"`
	Packages       int64   `json:"packages"`
	Installs       int64   `json:"installs"`
	FailedInstalls int64   `json:"failed_installs"`
	Broadcasts     int64   `json:"broadcasts"`
	TotalDuration  float64 `json:"total_duration_seconds"`
	RequestCount   int64   `json:"request_count"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

// NewMetrics creates a collector on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),
		stop:      make(chan struct{}),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pm_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pm_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pm_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pm_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "pm_sessions_active",
			Help: "Number of open install sessions",
		}),
		SessionEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pm_session_events_total",
				Help: "Install session lifecycle events",
			},
			[]string{"event"},
		),
		CommitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pm_session_commit_duration_seconds",
			Help:    "Time from commit request to terminal status",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 3, 5, 10, 30},
		}),

		PackagesKnown: f.NewGauge(prometheus.GaugeOpts{
			Name: "pm_packages_known",
			Help: "Number of package records in the registry",
		}),
		SharedLibraries: f.NewGauge(prometheus.GaugeOpts{
			Name: "pm_shared_libraries",
			Help: "Number of installed SDK library versions",
		}),
		Installs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pm_installs_total",
				Help: "Install commits by result code",
			},
			[]string{"result"},
		),
		Uninstalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pm_uninstalls_total",
				Help: "Uninstalls by mode and result",
			},
			[]string{"mode", "result"},
		),

		ArchiveOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pm_archive_operations_total",
				Help: "Archive and unarchive requests by result",
			},
			[]string{"op", "result"},
		),

		VerificationsPending: f.NewGauge(prometheus.GaugeOpts{
			Name: "pm_verifications_pending",
			Help: "Verification requests awaiting a decision",
		}),
		VerificationOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pm_verification_outcomes_total",
				Help: "Terminal verification outcomes",
			},
			[]string{"outcome"},
		),
		VerificationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pm_verification_duration_seconds",
			Help:    "Time from verification request to terminal outcome",
			Buckets: []float64{.01, .05, .1, .5, 1, 2, 3, 5, 10, 30},
		}),

		Broadcasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pm_broadcasts_total",
				Help: "Broadcasts published by action",
			},
			[]string{"action"},
		),
		WebhookDeliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pm_webhook_deliveries_total",
				Help: "Webhook deliveries by result",
			},
			[]string{"result"},
		),
		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "pm_ws_connections",
			Help: "Number of active WebSocket connections",
		}),
		WSMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pm_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		Uptime: f.NewGauge(prometheus.GaugeOpts{
			Name: "pm_uptime_seconds",
			Help: "Service uptime in seconds",
		}),
	}

	go m.updateUptime()

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Close stops the uptime updater.
func (m *Metrics) Close() {
	if m == nil {
		return
	}
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		case <-m.stop:
			return
		}
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordSessionEvent counts a session lifecycle event
// (created, committed, failed, abandoned).
func (m *Metrics) RecordSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

// SetSessionsActive sets the number of open sessions.
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// ObserveCommit records commit latency.
func (m *Metrics) ObserveCommit(d time.Duration) {
	if m == nil {
		return
	}
	m.CommitDuration.Observe(d.Seconds())
}

// RecordInstall counts an install commit. result is "success" or the
// failure code.
func (m *Metrics) RecordInstall(result string) {
	if m == nil {
		return
	}
	m.Installs.WithLabelValues(result).Inc()
	m.mu.Lock()
	if result == "success" {
		m.snapshot.Installs++
	} else {
		m.snapshot.FailedInstalls++
	}
	m.mu.Unlock()
}

// RecordUninstall counts an uninstall.
func (m *Metrics) RecordUninstall(mode, result string) {
	if m == nil {
		return
	}
	m.Uninstalls.WithLabelValues(mode, result).Inc()
}

// SetRegistrySize publishes registry cardinalities.
func (m *Metrics) SetRegistrySize(packages, libraries int) {
	if m == nil {
		return
	}
	m.PackagesKnown.Set(float64(packages))
	m.SharedLibraries.Set(float64(libraries))
	m.mu.Lock()
	m.snapshot.Packages = int64(packages)
	m.mu.Unlock()
}

// RecordArchiveOp counts an archive or unarchive request.
func (m *Metrics) RecordArchiveOp(op, result string) {
	if m == nil {
		return
	}
	m.ArchiveOps.WithLabelValues(op, result).Inc()
}

// AddVerificationsPending adjusts the pending verification gauge.
func (m *Metrics) AddVerificationsPending(delta int) {
	if m == nil {
		return
	}
	m.VerificationsPending.Add(float64(delta))
}

// RecordVerification records a terminal verification outcome.
func (m *Metrics) RecordVerification(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.VerificationOutcomes.WithLabelValues(outcome).Inc()
	m.VerificationDuration.Observe(d.Seconds())
}

// RecordBroadcast counts a published broadcast.
func (m *Metrics) RecordBroadcast(action string) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(action).Inc()
	m.mu.Lock()
	m.snapshot.Broadcasts++
	m.mu.Unlock()
}

// RecordWebhookDelivery counts a webhook delivery.
func (m *Metrics) RecordWebhookDelivery(result string) {
	if m == nil {
		return
	}
	m.WebhookDeliveries.WithLabelValues(result).Inc()
}

// RecordWSMessage records a WebSocket message.
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections.
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections.
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns current values for the JSON API.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
