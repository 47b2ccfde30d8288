package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the notification
// engine
type PrometheusMetrics struct {
	// Dispatch metrics
	EventsTriggeredTotal  *prometheus.CounterVec
	WorkflowsMatchedTotal *prometheus.CounterVec
	ItemsQueuedTotal      *prometheus.CounterVec

	// Queue processing metrics
	ItemsProcessedTotal    *prometheus.CounterVec
	SendDuration           *prometheus.HistogramVec
	QueueDepth             *prometheus.GaugeVec
	ProcessingPassDuration prometheus.Histogram

	// Gateway metrics
	GatewayErrorsTotal *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		EventsTriggeredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_events_triggered_total",
				Help: "Total number of event triggers received",
			},
			[]string{"event_key"},
		),

		WorkflowsMatchedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_workflows_matched_total",
				Help: "Total number of workflow condition matches",
			},
			[]string{"event_key"},
		),

		ItemsQueuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_items_queued_total",
				Help: "Total number of queue items created",
			},
			[]string{"channel"},
		),

		ItemsProcessedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_items_processed_total",
				Help: "Total number of queue items processed by outcome",
			},
			[]string{"channel", "status"},
		),

		SendDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_send_duration_seconds",
				Help:    "Duration of provider send calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),

		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "notifier_queue_depth",
				Help: "Number of queue items by status",
			},
			[]string{"status"},
		),

		ProcessingPassDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "notifier_processing_pass_duration_seconds",
				Help:    "Duration of one queue processing pass",
				Buckets: prometheus.DefBuckets,
			},
		),

		GatewayErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_gateway_errors_total",
				Help: "Total number of gateway delivery errors by kind",
			},
			[]string{"channel", "kind"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_http_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifier_http_request_duration_seconds",
				Help:    "Duration of HTTP API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifier_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "notifier_component_health",
				Help: "Component health status (1 healthy, 0 unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifier_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "notifier_goroutines",
				Help: "Current number of goroutines",
			},
		),
	}
}

// RecordTrigger records one event trigger and its fan-out
func (pm *PrometheusMetrics) RecordTrigger(eventKey string, matched, queued int) {
	pm.EventsTriggeredTotal.WithLabelValues(eventKey).Inc()
	pm.WorkflowsMatchedTotal.WithLabelValues(eventKey).Add(float64(matched))
}

// RecordQueued records a queue item creation
func (pm *PrometheusMetrics) RecordQueued(channel string) {
	pm.ItemsQueuedTotal.WithLabelValues(channel).Inc()
}

// RecordProcessed records the outcome of one processed queue item
func (pm *PrometheusMetrics) RecordProcessed(channel, status string, duration time.Duration) {
	pm.ItemsProcessedTotal.WithLabelValues(channel, status).Inc()
	pm.SendDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordGatewayError records a classified delivery error
func (pm *PrometheusMetrics) RecordGatewayError(channel, kind string) {
	pm.GatewayErrorsTotal.WithLabelValues(channel, kind).Inc()
}

// RecordHTTPRequest records an API request
func (pm *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	pm.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	pm.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateQueueDepth sets the queue depth gauge for one status
func (pm *PrometheusMetrics) UpdateQueueDepth(status string, depth int64) {
	pm.QueueDepth.WithLabelValues(status).Set(float64(depth))
}

// UpdateComponentHealth sets a component's health gauge
func (pm *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	pm.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage sets the memory usage gauge
func (pm *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	pm.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount sets the goroutine count gauge
func (pm *PrometheusMetrics) UpdateGoroutineCount(count int) {
	pm.GoroutineCount.Set(float64(count))
}

// UpdateApplicationUptime sets the uptime gauge
func (pm *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	pm.ApplicationUptime.Set(time.Since(startTime).Seconds())
}
