package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// ErrorCounter counts errors by type and endpoint
	ErrorCounter *prometheus.CounterVec
	// ScanBucketSize tracks the bucket sizes of the latest scan per platform
	ScanBucketSize *prometheus.GaugeVec
	// ScanSkipped tracks credentials skipped in the latest scan per platform
	ScanSkipped *prometheus.GaugeVec
	// ScanDuration tracks scan sweep duration per platform
	ScanDuration *prometheus.HistogramVec
	// ScansTotal counts scan sweeps by platform and status
	ScansTotal *prometheus.CounterVec
	// RefreshesTotal counts token refresh attempts by platform and outcome
	RefreshesTotal *prometheus.CounterVec
	// DecryptFailuresTotal counts credential payloads that failed to decrypt
	DecryptFailuresTotal *prometheus.CounterVec
	// DisconnectsTotal counts automatic disconnects by platform and reason
	DisconnectsTotal *prometheus.CounterVec
	// CredentialsStored tracks stored credential counts by status
	CredentialsStored *prometheus.GaugeVec
	// CleanupDeletedTotal counts rows purged by the retention janitor
	CleanupDeletedTotal *prometheus.CounterVec
	// MaintenanceDuration tracks database maintenance operation durations
	MaintenanceDuration *prometheus.HistogramVec
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
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
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "endpoint", "method"},
		),
		ScanBucketSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scan_bucket_size",
				Help:      "Bucket sizes of the most recent credential scan",
			},
			[]string{"platform", "bucket"},
		),
		ScanSkipped: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scan_skipped_credentials",
				Help:      "Credentials skipped in the most recent scan",
			},
			[]string{"platform"},
		),
		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scan_duration_seconds",
				Help:      "Credential scan sweep duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"platform"},
		),
		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Total number of credential scan sweeps",
			},
			[]string{"platform", "status"},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refreshes_total",
				Help:      "Total number of token refresh attempts",
			},
			[]string{"platform", "outcome"},
		),
		DecryptFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decrypt_failures_total",
				Help:      "Total number of credential payloads that failed to decrypt",
			},
			[]string{"platform"},
		),
		DisconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "disconnects_total",
				Help:      "Total number of credential disconnects",
			},
			[]string{"platform", "reason"},
		),
		CredentialsStored: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "credentials_stored",
				Help:      "Stored credential counts by status",
			},
			[]string{"status"},
		),
		CleanupDeletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleanup_deleted_rows_total",
				Help:      "Total number of rows purged by the retention janitor",
			},
			[]string{"table"},
		),
		MaintenanceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "maintenance_duration_seconds",
				Help:      "Database maintenance operation duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	// Register metrics with custom registry
	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.ErrorCounter,
		m.ScanBucketSize,
		m.ScanSkipped,
		m.ScanDuration,
		m.ScansTotal,
		m.RefreshesTotal,
		m.DecryptFailuresTotal,
		m.DisconnectsTotal,
		m.CredentialsStored,
		m.CleanupDeletedTotal,
		m.MaintenanceDuration,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, endpoint, method string) {
	m.ErrorCounter.WithLabelValues(errorType, endpoint, method).Inc()
}

// RecordScan records the outcome of one scan sweep.
func (m *Metrics) RecordScan(platform string, counts map[string]int, duration time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.ScansTotal.WithLabelValues(platform, status).Inc()
	if !ok {
		return
	}
	m.ScanDuration.WithLabelValues(platform).Observe(duration.Seconds())
	for bucket, size := range counts {
		if bucket == "skipped" {
			m.ScanSkipped.WithLabelValues(platform).Set(float64(size))
			continue
		}
		m.ScanBucketSize.WithLabelValues(platform, bucket).Set(float64(size))
	}
}

// RecordRefresh records a token refresh attempt
func (m *Metrics) RecordRefresh(platform, outcome string) {
	m.RefreshesTotal.WithLabelValues(platform, outcome).Inc()
}

// RecordDecryptFailure records a credential payload that failed to decrypt
func (m *Metrics) RecordDecryptFailure(platform string) {
	m.DecryptFailuresTotal.WithLabelValues(platform).Inc()
}

// RecordDisconnect records a credential disconnect
func (m *Metrics) RecordDisconnect(platform, reason string) {
	m.DisconnectsTotal.WithLabelValues(platform, reason).Inc()
}

// SetCredentialsStored sets the stored credential gauge for a status
func (m *Metrics) SetCredentialsStored(status string, count int) {
	m.CredentialsStored.WithLabelValues(status).Set(float64(count))
}

// RecordCleanup records rows purged from a table by the retention janitor
func (m *Metrics) RecordCleanup(table string, deleted int64) {
	m.CleanupDeletedTotal.WithLabelValues(table).Add(float64(deleted))
}

// RecordMaintenance records a database maintenance operation
func (m *Metrics) RecordMaintenance(operation string, duration time.Duration) {
	m.MaintenanceDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
