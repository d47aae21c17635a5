// Package monitoring exposes Prometheus metrics for the runtime and a
// gin middleware that records per-request observations.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Action metrics
	ActionsTotal   *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionResets    prometheus.Counter
	CommandsTotal    *prometheus.CounterVec
	TimeoutsTotal    *prometheus.CounterVec
	OutputTruncated  prometheus.Counter
	ValidationErrors *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runtime_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runtime_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),

		ActionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runtime_actions_total",
				Help: "Total number of executed actions",
			},
			[]string{"action", "status"},
		),
		ActionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runtime_action_duration_seconds",
				Help:    "Action execution duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"action"},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "runtime_sessions_active",
				Help: "Number of live terminal sessions",
			},
		),
		SessionResets: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "runtime_session_resets_total",
				Help: "Total number of session resets",
			},
		),
		CommandsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runtime_commands_total",
				Help: "Total number of shell commands by completion classifier",
			},
			[]string{"classifier"},
		),
		TimeoutsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runtime_command_timeouts_total",
				Help: "Total number of command timeouts",
			},
			[]string{"kind"},
		),
		OutputTruncated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "runtime_output_truncated_total",
				Help: "Total number of observations with truncated output",
			},
		),
		ValidationErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runtime_validation_errors_total",
				Help: "Total number of rejected command submissions",
			},
			[]string{"reason"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "runtime_uptime_seconds",
				Help: "Runtime uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAction records one executed action.
func (m *Metrics) RecordAction(action, status string, duration time.Duration) {
	m.ActionsTotal.WithLabelValues(action, status).Inc()
	m.ActionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordCommand records a shell command completion.
func (m *Metrics) RecordCommand(classifier string, truncated bool) {
	m.CommandsTotal.WithLabelValues(classifier).Inc()
	if truncated {
		m.OutputTruncated.Inc()
	}
}

// RecordTimeout records a soft or hard command timeout.
func (m *Metrics) RecordTimeout(kind string) {
	m.TimeoutsTotal.WithLabelValues(kind).Inc()
}

// RecordValidationError records a rejected submission.
func (m *Metrics) RecordValidationError(reason string) {
	m.ValidationErrors.WithLabelValues(reason).Inc()
}
