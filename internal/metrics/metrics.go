// Package metrics provides Prometheus instrumentation for the mcpscan
// intercept proxy.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luckyPipewrench/mcpscan/internal/finding"
)

// Metrics collects Prometheus counters and histograms for scans and the
// proxy.
type Metrics struct {
	registry *prometheus.Registry

	scansTotal    prometheus.Counter
	scanDuration  prometheus.Histogram
	findingsTotal *prometheus.CounterVec
	suppressed    prometheus.Counter

	proxyRequests *prometheus.CounterVec
	proxyFindings prometheus.Counter
	proxyLatency  prometheus.Histogram
}

// New creates a Metrics instance with its own Prometheus registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	scansTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mcpscan",
		Name:      "scans_total",
		Help:      "Total number of completed scans.",
	})

	scanDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mcpscan",
		Name:      "scan_duration_seconds",
		Help:      "Scan wall-clock duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	findingsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcpscan",
		Name:      "findings_total",
		Help:      "Total findings by severity.",
	}, []string{"severity"})

	suppressed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mcpscan",
		Name:      "suppressed_total",
		Help:      "Total findings removed by suppression rules.",
	})

	proxyRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcpscan",
		Name:      "proxy_requests_total",
		Help:      "Total proxied requests by result.",
	}, []string{"result"})

	proxyFindings := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mcpscan",
		Name:      "proxy_findings_total",
		Help:      "Total findings raised by the intercept proxy.",
	})

	proxyLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mcpscan",
		Name:      "proxy_request_duration_seconds",
		Help:      "Proxied request latency in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	reg.MustRegister(scansTotal, scanDuration, findingsTotal, suppressed,
		proxyRequests, proxyFindings, proxyLatency)

	return &Metrics{
		registry:      reg,
		scansTotal:    scansTotal,
		scanDuration:  scanDuration,
		findingsTotal: findingsTotal,
		suppressed:    suppressed,
		proxyRequests: proxyRequests,
		proxyFindings: proxyFindings,
		proxyLatency:  proxyLatency,
	}
}

// RecordScan records one completed detector run and its finding counts.
func (m *Metrics) RecordScan(findings []finding.Finding, duration time.Duration) {
	m.scansTotal.Inc()
	m.scanDuration.Observe(duration.Seconds())
	for _, f := range findings {
		m.findingsTotal.WithLabelValues(f.Severity.String()).Inc()
	}
}

// RecordSuppressed counts findings removed by suppression rules.
func (m *Metrics) RecordSuppressed(n int) {
	m.suppressed.Add(float64(n))
}

// RecordProxyRequest records one proxied request.
func (m *Metrics) RecordProxyRequest(result string, findings int, duration time.Duration) {
	m.proxyRequests.WithLabelValues(result).Inc()
	m.proxyFindings.Add(float64(findings))
	m.proxyLatency.Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
