// Package metrics provides Prometheus metrics for the arena scoring service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the arena service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Scoring
	scoresSubmitted *prometheus.CounterVec
	scoreRejections *prometheus.CounterVec
	inboundUpdates  *prometheus.CounterVec

	// Ranking engine
	recomputes       prometheus.Counter
	recomputeErrors  prometheus.Counter
	recomputeLatency prometheus.Histogram

	// Sync fan-out
	syncPushes      *prometheus.CounterVec
	syncPushLatency *prometheus.HistogramVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker
	workerCount             prometheus.Gauge
	workerErrorRate         prometheus.Counter
	workerProcessingLatency prometheus.Histogram

	// Live transport
	liveSubscribers prometheus.Gauge
	liveMessages    prometheus.Counter
	liveDropped     prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "arena",
		subsystem:        "scoring",
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

// Enabled reports whether periodic collectors should run.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often gauges fed by polling are refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

func (m *Manager) name(n string) string { return m.metricPrefix + n }

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.scoresSubmitted = m.counterVec("scores_submitted_total",
		"Score mutations by outcome (created, updated, unchanged, deleted)", "outcome")
	m.scoreRejections = m.counterVec("score_rejections_total",
		"Score mutations rejected before commit, by error kind", "reason")
	m.inboundUpdates = m.counterVec("inbound_updates_total",
		"Mirror originated updates by result", "result")

	m.recomputes = m.counter("ranking_recomputes_total", "Ranking recomputations committed")
	m.recomputeErrors = m.counter("ranking_recompute_errors_total", "Ranking recomputations aborted")
	m.recomputeLatency = m.histogram("ranking_recompute_latency_milliseconds",
		"Ranking recomputation latency in milliseconds", m.histogramBuckets)

	m.syncPushes = m.counterVec("sync_pushes_total", "Propagation attempts by target and result", "target", "result")
	m.syncPushLatency = m.histogramVec("sync_push_latency_milliseconds", "Propagation latency in milliseconds", "target")

	m.queueSize = m.gauge("queue_size", "Current size of the sync queue (backlog indicator)")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum sync queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Sync queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of sync jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of sync jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Sync jobs dropped because the queue was full or closed")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds",
		"Time a sync job waited in the queue in milliseconds", m.histogramBuckets)

	m.workerCount = m.gauge("worker_count", "Current number of sync workers")
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of failed sync jobs")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Sync job processing latency in milliseconds", m.histogramBuckets)

	m.liveSubscribers = m.gauge("live_subscribers", "Connected live subscribers")
	m.liveMessages = m.counter("live_messages_total", "Messages delivered to live subscribers")
	m.liveDropped = m.counter("live_dropped_total", "Live messages dropped for slow or stale subscribers")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Default returns the process wide manager.
func Default() *Manager { return globalManager }

// RecordScoreSubmitted counts a committed score mutation.
func RecordScoreSubmitted(outcome string) {
	globalManager.scoresSubmitted.WithLabelValues(outcome).Inc()
}

// RecordScoreRejected counts a mutation rejected before commit.
func RecordScoreRejected(reason string) {
	globalManager.scoreRejections.WithLabelValues(reason).Inc()
}

// RecordInboundUpdate counts a mirror originated update.
func RecordInboundUpdate(result string) {
	globalManager.inboundUpdates.WithLabelValues(result).Inc()
}

// RecordRecompute records a committed ranking recomputation.
func RecordRecompute(latencyMs float64) {
	globalManager.recomputes.Inc()
	globalManager.recomputeLatency.Observe(latencyMs)
}

// RecordRecomputeError counts an aborted recomputation.
func RecordRecomputeError() {
	globalManager.recomputeErrors.Inc()
}

// RecordSyncPush records one propagation attempt.
func RecordSyncPush(target, result string, latencyMs float64) {
	globalManager.syncPushes.WithLabelValues(target, result).Inc()
	globalManager.syncPushLatency.WithLabelValues(target).Observe(latencyMs)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue wait latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// UpdateLiveSubscribers sets the number of connected subscribers.
func UpdateLiveSubscribers(count int) {
	globalManager.liveSubscribers.Set(float64(count))
}

// RecordLiveMessage counts a delivered live message.
func RecordLiveMessage() {
	globalManager.liveMessages.Inc()
}

// RecordLiveDropped counts a message not delivered to a subscriber.
func RecordLiveDropped() {
	globalManager.liveDropped.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
