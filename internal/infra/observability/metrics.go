package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/slelog/crm-dashboard-go/internal/domain"
)

// Metrics holds all Prometheus metrics for the dashboard service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	ingestRows      *prometheus.CounterVec
	alertsEmitted   *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crm_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		ingestRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_ingest_rows_total",
				Help: "Ledger rows processed by outcome.",
			},
			[]string{"status"},
		),
		alertsEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_alerts_emitted_total",
				Help: "Alerts emitted by kind.",
			},
			[]string{"kind"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_requests_total",
				Help: "Total requests processed.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordIngestRows records accepted and rejected ledger rows.
func (m *Metrics) RecordIngestRows(accepted, rejected int) {
	m.ingestRows.WithLabelValues("accepted").Add(float64(accepted))
	m.ingestRows.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordAlerts records emitted alerts by kind.
func (m *Metrics) RecordAlerts(kind string, count int) {
	m.alertsEmitted.WithLabelValues(kind).Add(float64(count))
}

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// GetPipelineSnapshot returns a snapshot of pipeline metrics suitable
// for the GET /v1/metrics/pipeline endpoint.
func (m *Metrics) GetPipelineSnapshot() *domain.PipelineMetrics {
	// Gather current values from Prometheus counters.
	// Note: Prometheus counters expose cumulative values.
	success := getCounterValue(m.requestsTotal, "success")
	errorCount := getCounterValue(m.requestsTotal, "error")
	totalRequests := success + errorCount

	cacheHits := getCounterValue(m.cacheHits, "dashboard")
	cacheMisses := getCounterValue(m.cacheMisses, "dashboard")

	rowsAccepted := getCounterValue(m.ingestRows, "accepted")
	rowsRejected := getCounterValue(m.ingestRows, "rejected")

	alerts := getCounterValue(m.alertsEmitted, string(domain.AlertTicketDrop)) +
		getCounterValue(m.alertsEmitted, string(domain.AlertFrequencyDrop)) +
		getCounterValue(m.alertsEmitted, string(domain.AlertAnomaly))

	errorRate := float64(0)
	cacheHitRate := float64(0)
	if totalRequests > 0 {
		errorRate = errorCount / totalRequests
	}
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.PipelineMetrics{
		TotalRequests: int64(totalRequests),
		ErrorRate:     errorRate,
		CacheHitRate:  cacheHitRate,
		RowsAccepted:  int64(rowsAccepted),
		RowsRejected:  int64(rowsRejected),
		AlertsEmitted: int64(alerts),
		Period:        "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
