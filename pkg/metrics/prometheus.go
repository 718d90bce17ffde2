// Package metrics provides Prometheus metrics for the solar batch exporter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Item outcomes recorded by RecordItem.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Manager holds every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Batch pipeline
	batchesTotal    prometheus.Counter
	batchSize       prometheus.Histogram
	batchDuration   prometheus.Histogram
	itemsTotal      *prometheus.CounterVec
	fetchLatency    prometheus.Histogram
	externalErrors  *prometheus.CounterVec
	rowColumns      prometheus.Histogram
	inflightFetches prometheus.Gauge

	// Export
	rowsExported    prometheus.Counter
	exportsTotal    prometheus.Counter
	exportFailures  *prometheus.CounterVec
	exportsSkipped  prometheus.Counter
	exportLatency   prometheus.Histogram
	lastExportUnix  prometheus.Gauge
	lastHeaderWidth prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Init replaces the global manager with one built from opts on a fresh
// registry. Call it at startup, before handlers capture GetRegistry.
func Init(opts ...Option) {
	reg := prometheus.NewRegistry()
	all := append(append([]Option{}, opts...), WithPrometheusRegistry(reg))
	globalManager = NewManager(all...)
	customRegistry = reg
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "solar",
		subsystem:        "batch",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for all collectors
	reg := m.registry
	if len(m.customLabels) > 0 {
		reg = prometheus.WrapRegistererWith(m.customLabels, reg)
	}
	auto := promauto.With(reg)

	m.batchesTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      m.name("batches_total"),
		Help:      "Total number of batches processed",
	})

	m.batchSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      m.name("batch_size_items"),
		Help:      "Number of coordinates per batch",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	m.batchDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      m.name("batch_duration_milliseconds"),
		Help:      "Wall time of a whole batch including export",
		Buckets:   prometheus.ExponentialBuckets(10, 2, 14),
	})

	m.itemsTotal = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      m.name("items_total"),
			Help:      "Batch items by outcome",
		},
		[]string{"outcome"},
	)

	m.fetchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      m.name("fetch_latency_milliseconds"),
		Help:      "Latency of building insights requests in milliseconds",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	m.externalErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      m.name("external_api_errors_total"),
			Help:      "Failed building insights requests by HTTP status (0 for transport errors)",
		},
		[]string{"status_code"},
	)

	m.rowColumns = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      m.name("row_columns"),
		Help:      "Number of columns produced by flattening one response",
		Buckets:   prometheus.LinearBuckets(0, 25, 12),
	})

	m.inflightFetches = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      m.name("inflight_fetches"),
		Help:      "Building insights requests currently outstanding",
	})

	m.rowsExported = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      m.name("rows_exported_total"),
		Help:      "Rows written to CSV artifacts",
	})

	m.exportsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      m.name("exports_total"),
		Help:      "CSV artifacts written",
	})

	m.exportFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      m.name("export_failures_total"),
			Help:      "CSV export failures by failing operation",
		},
		[]string{"op"},
	)

	m.exportsSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      m.name("exports_skipped_total"),
		Help:      "Exports skipped because the batch was empty",
	})

	m.exportLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      m.name("export_latency_milliseconds"),
		Help:      "Time to write one CSV artifact",
		Buckets:   m.histogramBuckets,
	})

	m.lastExportUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      m.name("last_export_timestamp_seconds"),
		Help:      "Unix time of the last successful export",
	})

	m.lastHeaderWidth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      m.name("last_export_columns"),
		Help:      "Header width of the last successful export",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      m.name("http_requests_total"),
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      m.name("http_request_duration_milliseconds"),
			Help:      "HTTP request duration in milliseconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      m.name("http_errors_total"),
			Help:      "HTTP error responses by endpoint, method and error type",
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      m.name("system_memory_usage_bytes"),
		Help:      "Heap bytes allocated",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      m.name("system_goroutine_count"),
		Help:      "Number of goroutines",
	})
}

// RecordBatch records one processed batch of n items.
func RecordBatch(n int, d time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.batchesTotal.Inc()
	globalManager.batchSize.Observe(float64(n))
	globalManager.batchDuration.Observe(float64(d.Milliseconds()))
}

// RecordItem counts one batch item by outcome.
func RecordItem(outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.itemsTotal.WithLabelValues(outcome).Inc()
}

// RecordFetchLatency records the latency of one outbound request.
func RecordFetchLatency(d time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.fetchLatency.Observe(float64(d.Milliseconds()))
}

// RecordExternalAPIError counts a failed outbound request.
func RecordExternalAPIError(statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.externalErrors.WithLabelValues(statusCode).Inc()
}

// RecordRowColumns records the width of one flattened row.
func RecordRowColumns(n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.rowColumns.Observe(float64(n))
}

// AddInflightFetches adjusts the outstanding request gauge.
func AddInflightFetches(delta int) {
	if !globalManager.enabled {
		return
	}
	globalManager.inflightFetches.Add(float64(delta))
}

// RecordExport records a successful CSV write.
func RecordExport(rows, columns int, d time.Duration) {
	if !globalManager.enabled {
		return
	}
	globalManager.exportsTotal.Inc()
	globalManager.rowsExported.Add(float64(rows))
	globalManager.exportLatency.Observe(float64(d.Milliseconds()))
	globalManager.lastExportUnix.SetToCurrentTime()
	globalManager.lastHeaderWidth.Set(float64(columns))
}

// RecordExportFailure counts a failed CSV write by operation.
func RecordExportFailure(op string) {
	if !globalManager.enabled {
		return
	}
	globalManager.exportFailures.WithLabelValues(op).Inc()
}

// RecordExportSkipped counts an export skipped for an empty batch.
func RecordExportSkipped() {
	if !globalManager.enabled {
		return
	}
	globalManager.exportsSkipped.Inc()
}

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage updates the system memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates the goroutine count gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RefreshInterval is how often periodic gauges should be refreshed.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
