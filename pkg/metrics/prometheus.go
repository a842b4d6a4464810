// Package metrics provides Prometheus metrics for the attendee intake service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Intake pipeline
	intakeTotal        *prometheus.CounterVec
	intakeLatency      prometheus.Histogram
	mediumConfidence   *prometheus.CounterVec
	ambiguousMatches   prometheus.Counter
	backstopRetries    prometheus.Counter
	idempotentReplays  prometheus.Counter
	idempotencyErrors  prometheus.Counter
	reviewQueued       *prometheus.CounterVec
	reviewResolutions  *prometheus.CounterVec
	pendingReviews     *prometheus.GaugeVec
	activeRecords      prometheus.Gauge
	importRows         *prometheus.CounterVec
	importBatchLatency prometheus.Histogram

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Outbox relay
	eventsPublished *prometheus.CounterVec
	publishErrors   *prometheus.CounterVec
	outboxBacklog   prometheus.Gauge

	// Import job queue and workers
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram
	workerActiveCount      prometheus.Gauge
	workerLatency          prometheus.Histogram
	workerErrors           prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec
	errorLatency      *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps the default Go collectors out of the exposition.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "intake",
		subsystem:        "engine",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.intakeTotal = m.counterVec("intake_total", "Candidates processed by source and outcome", "source", "outcome")
	m.intakeLatency = m.histogram("intake_latency_milliseconds", "Check-and-commit latency per candidate")
	m.mediumConfidence = m.counterVec("medium_confidence_fields_total", "OCR fields that landed in the medium tier", "field")
	m.ambiguousMatches = m.counter("ambiguous_matches_total", "Matches where several active records shared a key")
	m.backstopRetries = m.counter("uniqueness_backstop_retries_total", "Commits retried after the uniqueness backstop fired")
	m.idempotentReplays = m.counter("idempotent_replays_total", "Submissions skipped because their idempotency key was seen")
	m.idempotencyErrors = m.counter("idempotency_errors_total", "Idempotency store failures (fail open)")
	m.reviewQueued = m.counterVec("review_queued_total", "Review items created by issue type", "issue_type")
	m.reviewResolutions = m.counterVec("review_resolutions_total", "Review transitions by action and result", "action", "result")
	m.pendingReviews = m.gaugeVec("pending_reviews", "Pending review items by issue type", "issue_type")
	m.activeRecords = m.gauge("active_records", "Committed, non-superseded attendee records")
	m.importRows = m.counterVec("import_rows_total", "Import rows by outcome", "status")
	m.importBatchLatency = m.histogram("import_batch_latency_milliseconds", "Duration of a whole import batch")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Store operation failures", "op")

	m.eventsPublished = m.counterVec("events_published_total", "Domain events delivered by type", "type")
	m.publishErrors = m.counterVec("event_publish_errors_total", "Domain event delivery failures by type", "type")
	m.outboxBacklog = m.gauge("outbox_backlog", "Undelivered events seen by the last relay poll")

	m.queueSize = m.gauge("import_queue_size", "Import jobs waiting in the queue")
	m.queueCapacity = m.gauge("import_queue_capacity", "Import queue capacity")
	m.queueUtilization = m.gauge("import_queue_utilization_ratio", "Import queue fill ratio (0-1)")
	m.queueEnqueued = m.counter("import_queue_enqueued_total", "Import jobs enqueued")
	m.queueDequeued = m.counter("import_queue_dequeued_total", "Import jobs dequeued")
	m.queueEnqueueErrors = m.counter("import_queue_enqueue_errors_total", "Import jobs rejected by the queue")
	m.queueProcessingLatency = m.histogram("import_queue_enqueue_latency_milliseconds", "Enqueue latency")
	m.workerActiveCount = m.gauge("import_workers", "Import workers running")
	m.workerLatency = m.histogram("import_worker_latency_milliseconds", "Time a worker spends on one job")
	m.workerErrors = m.counter("import_worker_errors_total", "Import jobs that failed")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorsByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of failed operations", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "system_gc_pause_time_milliseconds",
		Help:    "Average GC pause in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
	})
}

// RecordIntake counts one candidate by source and outcome.
func RecordIntake(source, outcome string) {
	globalManager.intakeTotal.WithLabelValues(source, outcome).Inc()
}

// RecordIntakeLatency observes check-and-commit latency.
func RecordIntakeLatency(ms float64) { globalManager.intakeLatency.Observe(ms) }

// RecordMediumConfidence counts a medium-tier OCR field.
func RecordMediumConfidence(field string) {
	globalManager.mediumConfidence.WithLabelValues(field).Inc()
}

// RecordAmbiguousMatch counts a data-integrity anomaly.
func RecordAmbiguousMatch() { globalManager.ambiguousMatches.Inc() }

// RecordBackstopRetry counts a commit retried after a uniqueness violation.
func RecordBackstopRetry() { globalManager.backstopRetries.Inc() }

// RecordIdempotentReplay counts a replayed submission.
func RecordIdempotentReplay() { globalManager.idempotentReplays.Inc() }

// RecordIdempotencyError counts an idempotency store failure.
func RecordIdempotencyError() { globalManager.idempotencyErrors.Inc() }

// RecordReviewQueued counts a created review item.
func RecordReviewQueued(issueType string) {
	globalManager.reviewQueued.WithLabelValues(issueType).Inc()
}

// RecordReviewResolution counts a review transition attempt.
func RecordReviewResolution(action, result string) {
	globalManager.reviewResolutions.WithLabelValues(action, result).Inc()
}

// UpdatePendingReviews sets the pending count for one issue type.
func UpdatePendingReviews(issueType string, n int) {
	globalManager.pendingReviews.WithLabelValues(issueType).Set(float64(n))
}

// UpdateActiveRecords sets the active record count.
func UpdateActiveRecords(n int) { globalManager.activeRecords.Set(float64(n)) }

// RecordImportRow counts one import row outcome.
func RecordImportRow(status string) {
	globalManager.importRows.WithLabelValues(status).Inc()
}

// RecordImportBatchLatency observes the duration of a batch.
func RecordImportBatchLatency(ms float64) { globalManager.importBatchLatency.Observe(ms) }

// RecordStoreLatency observes a store operation.
func RecordStoreLatency(op string, ms float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(ms)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// RecordEventPublished counts a delivered event.
func RecordEventPublished(eventType string) {
	globalManager.eventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventPublishError counts a failed delivery.
func RecordEventPublishError(eventType string) {
	globalManager.publishErrors.WithLabelValues(eventType).Inc()
}

// UpdateOutboxBacklog sets the size of the last relay poll.
func UpdateOutboxBacklog(n int) { globalManager.outboxBacklog.Set(float64(n)) }

// UpdateQueueSize sets the current import queue length.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the import queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the import queue fill ratio.
func UpdateQueueUtilization(ratio float64) { globalManager.queueUtilization.Set(ratio) }

// RecordQueueEnqueue counts an enqueued job.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue counts a dequeued job.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError counts a rejected job.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// RecordQueueProcessingLatency observes enqueue latency.
func RecordQueueProcessingLatency(ms float64) { globalManager.queueProcessingLatency.Observe(ms) }

// UpdateWorkerActiveCount sets the number of running import workers.
func UpdateWorkerActiveCount(n int) { globalManager.workerActiveCount.Set(float64(n)) }

// RecordWorkerProcessingLatency observes the time spent on one job.
func RecordWorkerProcessingLatency(ms float64) { globalManager.workerLatency.Observe(ms) }

// RecordWorkerError counts a failed job.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType counts an error by type and severity.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint counts an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency observes the latency of a failed operation.
func RecordErrorLatency(component, errorType string, ms float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(ms)
}

// UpdateSystemMemoryUsage sets heap allocation in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(n int) { globalManager.systemGoroutineCount.Set(float64(n)) }

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(ms float64) { globalManager.systemGCPauseTime.Observe(ms) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
