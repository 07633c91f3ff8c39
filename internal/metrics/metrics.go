package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wpplink"

// Metrics exposes counters/histograms for backups, link sessions and the
// relay. A nil *Metrics is valid and records nothing.
type Metrics struct {
	backupTotal     *prometheus.CounterVec
	backupFrames    *prometheus.CounterVec
	backupErrors    *prometheus.CounterVec
	linkTotal       *prometheus.CounterVec
	linkStepLatency *prometheus.HistogramVec
	relayRequests   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		backupTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "operations_total",
			Help:      "Backup exports and imports by outcome",
		}, []string{"op", "outcome"}),
		backupFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "frames_total",
			Help:      "Frames written on export or restored on import",
		}, []string{"op"}),
		backupErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "item_errors_total",
			Help:      "Per-item errors collected during backups",
		}, []string{"op"}),
		linkTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "sessions_total",
			Help:      "Link-and-sync sessions by role and result",
		}, []string{"role", "result"}),
		linkStepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "step_duration_seconds",
			Help:      "Duration of each link-and-sync step",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 300, 660},
		}, []string{"role", "step"}),
		relayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Relay requests by route and status code",
		}, []string{"route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.backupTotal, m.backupFrames, m.backupErrors, m.linkTotal, m.linkStepLatency, m.relayRequests)
	return m
}

func (m *Metrics) ObserveBackup(op, outcome string, frames, itemErrors int) {
	if m == nil {
		return
	}
	m.backupTotal.WithLabelValues(op, outcome).Inc()
	m.backupFrames.WithLabelValues(op).Add(float64(frames))
	m.backupErrors.WithLabelValues(op).Add(float64(itemErrors))
}

func (m *Metrics) ObserveLinkSession(role, result string) {
	if m == nil {
		return
	}
	m.linkTotal.WithLabelValues(role, result).Inc()
}

func (m *Metrics) ObserveLinkStep(role, step string, d time.Duration) {
	if m == nil {
		return
	}
	m.linkStepLatency.WithLabelValues(role, step).Observe(d.Seconds())
}

func (m *Metrics) ObserveRelayRequest(route string, status int) {
	if m == nil {
		return
	}
	m.relayRequests.WithLabelValues(route, statusLabel(status)).Inc()
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code == 429:
		return "429"
	case code >= 400:
		return "4xx"
	case code == 204:
		return "204"
	default:
		return "2xx"
	}
}
