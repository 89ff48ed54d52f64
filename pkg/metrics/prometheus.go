// Package metrics provides Prometheus metrics for the liftsense analysis service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the liftsense service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Stream Metrics - per-frame analysis
	framesReceived  prometheus.Counter
	framesSkipped   *prometheus.CounterVec
	framesProcessed prometheus.Counter
	frameErrors     *prometheus.CounterVec
	detectionMisses prometheus.Counter
	frameLatency    prometheus.Histogram

	// Training Metrics - what the lifter sees
	repsCompleted *prometheus.CounterVec
	rirEstimates  prometheus.Histogram
	repVelocity   prometheus.Histogram

	// Session Metrics
	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	sessionResets  prometheus.Counter

	// Inference Metrics - detector round trips
	inferenceLatency   prometheus.Histogram
	inferenceErrors    prometheus.Counter
	inferenceAbandoned prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics - inference backlog
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "liftsense",
		subsystem:        "stream",
		histogramBuckets: prometheus.DefBuckets,
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
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Stream Metrics
	m.framesReceived = m.counter("frames_received_total", "Total number of frames received from clients")
	m.framesSkipped = m.counterVec("frames_skipped_total", "Frames skipped without a response, by reason", "reason")
	m.framesProcessed = m.counter("frames_processed_total", "Frames that produced a feedback message")
	m.frameErrors = m.counterVec("frame_errors_total", "Frame processing errors by kind", "kind")
	m.detectionMisses = m.counter("detection_misses_total", "Frames where no lifter or tracking point was found")
	m.frameLatency = m.histogram("frame_latency_milliseconds",
		"End to end frame processing latency in milliseconds", m.histogramBuckets)

	// Training Metrics
	m.repsCompleted = m.counterVec("reps_completed_total", "Completed repetitions by exercise", "exercise")
	m.rirEstimates = m.histogram("rir_estimate", "Distribution of reps in reserve estimates",
		[]float64{0, 1, 2, 3, 4, 5, 6, 7, 8})
	m.repVelocity = m.histogram("rep_velocity_normalized", "Peak normalized velocity per completed rep",
		[]float64{0.01, 0.02, 0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 2})

	// Session Metrics
	m.sessionsActive = m.gauge("sessions_active", "Number of open analysis sessions")
	m.sessionsTotal = m.counter("sessions_total", "Total number of analysis sessions opened")
	m.sessionResets = m.counter("session_resets_total", "Session resets caused by an exercise change")

	// Inference Metrics
	m.inferenceLatency = m.histogram("inference_latency_milliseconds",
		"Pose detector call latency in milliseconds", m.histogramBuckets)
	m.inferenceErrors = m.counter("inference_errors_total", "Total number of failed detector calls")
	m.inferenceAbandoned = m.counter("inference_abandoned_total",
		"Inference jobs dropped because the submitter stopped waiting")

	// HTTP Performance Metrics
	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Queue Metrics
	m.queueSize = m.gauge("queue_size", "Current number of queued inference jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of rejected enqueues")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds",
		"Enqueue latency in milliseconds", m.histogramBuckets)

	// Worker Metrics
	m.workerActiveCount = m.gauge("worker_active_count", "Number of inference workers")
	m.workerMessagesPerSecond = m.gauge("worker_messages_per_second", "Average jobs processed per second by workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time from enqueue to reply in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	// Error Metrics
	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total",
		"Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")

	// System Performance Metrics
	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Stream Metrics Functions.

// RecordFrameReceived increments the received frames counter.
func RecordFrameReceived() {
	globalManager.framesReceived.Inc()
}

// RecordFrameSkipped counts a frame dropped without a response.
func RecordFrameSkipped(reason string) {
	globalManager.framesSkipped.WithLabelValues(reason).Inc()
}

// RecordFrameProcessed counts a frame that produced feedback and observes its latency.
func RecordFrameProcessed(latencyMs float64) {
	globalManager.framesProcessed.Inc()
	globalManager.frameLatency.Observe(latencyMs)
}

// RecordFrameError counts a frame processing error by kind.
func RecordFrameError(kind string) {
	globalManager.frameErrors.WithLabelValues(kind).Inc()
}

// RecordDetectionMiss counts a frame without a usable tracking point.
func RecordDetectionMiss() {
	globalManager.detectionMisses.Inc()
}

// Training Metrics Functions.

// RecordRepCompleted records a completed rep with its peak velocity and the new RIR.
func RecordRepCompleted(exercise string, velocity float64, rir int) {
	globalManager.repsCompleted.WithLabelValues(exercise).Inc()
	globalManager.repVelocity.Observe(velocity)
	globalManager.rirEstimates.Observe(float64(rir))
}

// Session Metrics Functions.

// RecordSessionOpened increments the session counters.
func RecordSessionOpened() {
	globalManager.sessionsTotal.Inc()
	globalManager.sessionsActive.Inc()
}

// RecordSessionClosed decrements the active sessions gauge.
func RecordSessionClosed() {
	globalManager.sessionsActive.Dec()
}

// RecordSessionReset counts a reset caused by an exercise change.
func RecordSessionReset() {
	globalManager.sessionResets.Inc()
}

// Inference Metrics Functions.

// RecordInferenceLatency records a detector call latency.
func RecordInferenceLatency(latencyMs float64) {
	globalManager.inferenceLatency.Observe(latencyMs)
}

// RecordInferenceError increments the failed detector calls counter.
func RecordInferenceError() {
	globalManager.inferenceErrors.Inc()
}

// RecordInferenceAbandoned counts a job skipped because nobody waits for it.
func RecordInferenceAbandoned() {
	globalManager.inferenceAbandoned.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

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

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average jobs processed per second.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

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

// System Performance Metrics Functions.

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
