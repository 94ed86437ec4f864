package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records gateway notification processing outcomes.
type WebhookMetrics struct {
	received      *prometheus.CounterVec
	processed     *prometheus.CounterVec
	failed        *prometheus.CounterVec
	unknownStatus *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_received_total",
		Help: "Gateway notifications received.",
	}, []string{"source", "event_type"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_processed_total",
		Help: "Gateway notifications reconciled successfully.",
	}, []string{"source", "event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_failed_total",
		Help: "Gateway notifications that failed reconciliation.",
	}, []string{"source", "event_type"})
	unknownStatus := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_unknown_status_total",
		Help: "Gateway statuses that did not map to a known payment status.",
	}, []string{"source", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_processing_duration_seconds",
		Help:    "Duration of webhook reconciliation in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
	reg.MustRegister(received, processed, failed, unknownStatus, duration)
	return &WebhookMetrics{
		received:      received,
		processed:     processed,
		failed:        failed,
		unknownStatus: unknownStatus,
		duration:      duration,
	}
}

// IncReceived increments the received counter.
func (w *WebhookMetrics) IncReceived(source, eventType string) {
	if w == nil || w.received == nil {
		return
	}
	w.received.WithLabelValues(normalizeLabel(source), normalizeLabel(eventType)).Inc()
}

// IncProcessed increments the processed counter.
func (w *WebhookMetrics) IncProcessed(source, eventType string) {
	if w == nil || w.processed == nil {
		return
	}
	w.processed.WithLabelValues(normalizeLabel(source), normalizeLabel(eventType)).Inc()
}

// IncFailed increments the failure counter.
func (w *WebhookMetrics) IncFailed(source, eventType string) {
	if w == nil || w.failed == nil {
		return
	}
	w.failed.WithLabelValues(normalizeLabel(source), normalizeLabel(eventType)).Inc()
}

// IncUnknownStatus increments the unknown status counter.
func (w *WebhookMetrics) IncUnknownStatus(source, status string) {
	if w == nil || w.unknownStatus == nil {
		return
	}
	w.unknownStatus.WithLabelValues(normalizeLabel(source), normalizeLabel(status)).Inc()
}

// ObserveDuration records reconciliation duration for the source.
func (w *WebhookMetrics) ObserveDuration(source string, duration time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(normalizeLabel(source)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
