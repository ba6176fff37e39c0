// Package metrics exposes premium counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bravo_premium"

// Metrics owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	featureDecisions     *prometheus.CounterVec
	receiptVerifications *prometheus.CounterVec
	rateLimited          *prometheus.CounterVec
	transitions          *prometheus.CounterVec
	entitlements         *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		featureDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_decisions_total",
			Help:      "Feature access decisions by feature and result.",
		}, []string{"feature", "allowed"}),
		receiptVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipt_verifications_total",
			Help:      "Receipt verification outcomes by platform.",
		}, []string{"platform", "outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"endpoint"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_transitions_total",
			Help:      "Committed entitlement status changes.",
		}, []string{"from", "to"}),
		entitlements: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entitlements",
			Help:      "Entitlement records by status, refreshed by the sweeper.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.featureDecisions,
		m.receiptVerifications,
		m.rateLimited,
		m.transitions,
		m.entitlements,
	)
	return m
}

func (m *Metrics) FeatureDecision(feature string, allowed bool) {
	m.featureDecisions.WithLabelValues(feature, strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) ReceiptVerification(platform, outcome string) {
	m.receiptVerifications.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) RateLimited(endpoint string) {
	m.rateLimited.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) Transition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

// SetEntitlements replaces the per-status gauge values.
func (m *Metrics) SetEntitlements(counts map[string]int64) {
	m.entitlements.Reset()
	for status, n := range counts {
		m.entitlements.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
