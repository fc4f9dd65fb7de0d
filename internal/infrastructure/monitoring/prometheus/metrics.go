package prometheus

import (
	"strconv"
	"time"
)

// Label values shared by the Record helpers.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	CacheHit  = "hit"
	CacheMiss = "miss"

	// ExportModeInline is an export produced within a request;
	// ExportModeJob is one handed to the background worker.
	ExportModeInline = "inline"
	ExportModeJob    = "job"
)

// Duration buckets from 5ms to ~40s, suited to queries and exports alike.
var DefaultDurationBuckets = []float64{0.005, 0.02, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 40}

// Row-count buckets from single rows up to the largest exports.
var DefaultRowBuckets = []float64{1, 10, 100, 1000, 10000, 100000}

// AppMetrics bundles every metric the application emits. Vectors are exported
// for direct use; the Record helpers cover the common paths. All methods are
// safe on a nil receiver, so components may treat metrics as optional.
type AppMetrics struct {
	// HTTP surface.
	HTTPRequestsTotal    CounterVec
	HTTPRequestDuration  HistogramVec
	HTTPRequestsInFlight GaugeVec

	// Patent search.
	SearchesTotal      CounterVec
	SearchDuration     HistogramVec
	SearchResultRows   HistogramVec
	AssigneeLoadsTotal CounterVec

	// CSV export.
	ExportsTotal    CounterVec
	ExportDuration  HistogramVec
	ExportRows      HistogramVec
	ExportsInFlight GaugeVec

	// Backing stores.
	StoreQueryDuration HistogramVec
	StoreErrorsTotal   CounterVec

	// Caching.
	CacheRequestsTotal CounterVec

	// Messaging.
	EventsPublishedTotal CounterVec
	EventsConsumedTotal  CounterVec
	EventProcessDuration HistogramVec

	// Build metadata, set once at startup.
	BuildInfo GaugeVec
}

// NewAppMetrics registers the application metric set against the collector.
func NewAppMetrics(c MetricsCollector) *AppMetrics {
	return &AppMetrics{
		HTTPRequestsTotal: c.RegisterCounter("http_requests_total",
			"HTTP requests by method, route and status code.",
			"method", "path", "status"),
		HTTPRequestDuration: c.RegisterHistogram("http_request_duration_seconds",
			"HTTP request latency by method and route.",
			DefaultDurationBuckets, "method", "path"),
		HTTPRequestsInFlight: c.RegisterGauge("http_requests_in_flight",
			"HTTP requests currently being served."),

		SearchesTotal: c.RegisterCounter("searches_total",
			"Patent searches by outcome.",
			"status"),
		SearchDuration: c.RegisterHistogram("search_duration_seconds",
			"Patent search latency.",
			DefaultDurationBuckets),
		SearchResultRows: c.RegisterHistogram("search_result_rows",
			"Rows returned per search page.",
			DefaultRowBuckets),
		AssigneeLoadsTotal: c.RegisterCounter("assignee_loads_total",
			"Assignee directory loads by outcome.",
			"status"),

		ExportsTotal: c.RegisterCounter("exports_total",
			"CSV exports by mode and outcome.",
			"mode", "status"),
		ExportDuration: c.RegisterHistogram("export_duration_seconds",
			"End-to-end export latency by mode.",
			DefaultDurationBuckets, "mode"),
		ExportRows: c.RegisterHistogram("export_rows",
			"Rows written per completed export.",
			DefaultRowBuckets),
		ExportsInFlight: c.RegisterGauge("exports_in_flight",
			"Exports currently running."),

		StoreQueryDuration: c.RegisterHistogram("store_query_duration_seconds",
			"Store query latency by backend and operation.",
			DefaultDurationBuckets, "backend", "operation"),
		StoreErrorsTotal: c.RegisterCounter("store_errors_total",
			"Store query failures by backend and operation.",
			"backend", "operation"),

		CacheRequestsTotal: c.RegisterCounter("cache_requests_total",
			"Cache lookups by cache name and outcome.",
			"cache", "status"),

		EventsPublishedTotal: c.RegisterCounter("events_published_total",
			"Events published by topic and outcome.",
			"topic", "status"),
		EventsConsumedTotal: c.RegisterCounter("events_consumed_total",
			"Events consumed by topic and outcome.",
			"topic", "status"),
		EventProcessDuration: c.RegisterHistogram("event_process_duration_seconds",
			"Event handling latency by topic.",
			DefaultDurationBuckets, "topic"),

		BuildInfo: c.RegisterGauge("build_info",
			"Build metadata; the value is always 1.",
			"version", "commit"),
	}
}

// RecordHTTPRequest counts one finished request and observes its latency.
func (m *AppMetrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSearch counts one search and observes its latency and page size.
func (m *AppMetrics) RecordSearch(rows int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.SearchesTotal.WithLabelValues(status).Inc()
	m.SearchDuration.WithLabelValues().Observe(duration.Seconds())
	if err == nil {
		m.SearchResultRows.WithLabelValues().Observe(float64(rows))
	}
}

// RecordAssigneeLoad counts one assignee directory load.
func (m *AppMetrics) RecordAssigneeLoad(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.AssigneeLoadsTotal.WithLabelValues(status).Inc()
}

// RecordExport counts one finished export and observes latency and row count.
func (m *AppMetrics) RecordExport(mode string, rows int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.ExportsTotal.WithLabelValues(mode, status).Inc()
	m.ExportDuration.WithLabelValues(mode).Observe(duration.Seconds())
	if err == nil {
		m.ExportRows.WithLabelValues().Observe(float64(rows))
	}
}

// ExportStarted raises the in-flight gauge; pair it with ExportFinished.
func (m *AppMetrics) ExportStarted() {
	if m == nil {
		return
	}
	m.ExportsInFlight.WithLabelValues().Inc()
}

// ExportFinished lowers the in-flight gauge.
func (m *AppMetrics) ExportFinished() {
	if m == nil {
		return
	}
	m.ExportsInFlight.WithLabelValues().Dec()
}

// RecordStoreQuery observes one store round trip and counts failures.
func (m *AppMetrics) RecordStoreQuery(backend, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.StoreQueryDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		m.StoreErrorsTotal.WithLabelValues(backend, operation).Inc()
	}
}

// RecordCacheAccess counts one cache lookup as a hit or a miss.
func (m *AppMetrics) RecordCacheAccess(cache string, hit bool) {
	if m == nil {
		return
	}
	status := CacheMiss
	if hit {
		status = CacheHit
	}
	m.CacheRequestsTotal.WithLabelValues(cache, status).Inc()
}

// RecordEventPublished counts one publish attempt by outcome.
func (m *AppMetrics) RecordEventPublished(topic string, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.EventsPublishedTotal.WithLabelValues(topic, status).Inc()
}

// RecordEventConsumed counts one handled event and observes its latency.
func (m *AppMetrics) RecordEventConsumed(topic string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.EventsConsumedTotal.WithLabelValues(topic, status).Inc()
	m.EventProcessDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

// SetBuildInfo publishes the build metadata series.
func (m *AppMetrics) SetBuildInfo(version, commit string) {
	if m == nil {
		return
	}
	m.BuildInfo.WithLabelValues(version, commit).Set(1)
}
