package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// MailboxPolls counts mailbox polls by provider and outcome
	MailboxPolls *prometheus.CounterVec
	// CodesHarvested counts extracted codes by outcome (inserted, deduped, failed)
	CodesHarvested *prometheus.CounterVec
	// TokenRefreshes counts OAuth refresh attempts by provider and result
	TokenRefreshes *prometheus.CounterVec
	// OTPGenerated counts locally generated one-time passwords by type
	OTPGenerated *prometheus.CounterVec
	registry     *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics on a private registry
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		MailboxPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mailbox_polls_total",
				Help:      "Total number of mailbox polls",
			},
			[]string{"provider", "outcome"},
		),
		CodesHarvested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "codes_harvested_total",
				Help:      "Total number of verification codes found in mail",
			},
			[]string{"outcome"},
		),
		TokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Total number of OAuth token refreshes",
			},
			[]string{"provider", "result"},
		),
		OTPGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "otp_generated_total",
				Help:      "Total number of locally generated one-time passwords",
			},
			[]string{"type"},
		),
	}

	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.MailboxPolls,
		m.CodesHarvested,
		m.TokenRefreshes,
		m.OTPGenerated,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records an HTTP request and its latency
func (m *Metrics) RecordRequest(endpoint, method, status string, durationSeconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// RecordPoll records one mailbox poll. Outcome is ok, skipped or error.
func (m *Metrics) RecordPoll(provider, outcome string) {
	m.MailboxPolls.WithLabelValues(provider, outcome).Inc()
}

// RecordCode records the fate of one extracted code
func (m *Metrics) RecordCode(outcome string) {
	m.CodesHarvested.WithLabelValues(outcome).Inc()
}

// RecordTokenRefresh records an OAuth refresh attempt
func (m *Metrics) RecordTokenRefresh(provider string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.TokenRefreshes.WithLabelValues(provider, result).Inc()
}

// RecordOTP records a locally generated one-time password
func (m *Metrics) RecordOTP(otpType string) {
	m.OTPGenerated.WithLabelValues(otpType).Inc()
}
