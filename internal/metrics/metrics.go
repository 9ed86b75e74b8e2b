package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Webhook metrics
	WebhookEventsTotal     *prometheus.CounterVec
	WebhookDurationSeconds *prometheus.HistogramVec

	// Dedup metrics
	DedupSuppressedTotal prometheus.Counter
	DedupCacheSize       prometheus.Gauge

	// Generation metrics
	LLMRequestsTotal   *prometheus.CounterVec
	LLMDurationSeconds *prometheus.HistogramVec

	// Store metrics
	StoreOpsTotal *prometheus.CounterVec

	// Extraction metrics
	ExtractedTagsTotal *prometheus.CounterVec

	// Delivery metrics
	DeliveriesTotal *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		WebhookEventsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nutri_webhook_events_total",
				Help: "Total number of webhook events by type and status",
			},
			[]string{"event_type", "status"}, // status: success, error, duplicate, skipped
		),

		WebhookDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nutri_webhook_duration_seconds",
				Help:    "Per-event processing duration in seconds by event type",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"event_type"},
		),

		DedupSuppressedTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "nutri_dedup_suppressed_total",
				Help: "Total number of webhook events suppressed as duplicates",
			},
		),

		DedupCacheSize: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "nutri_dedup_cache_size",
				Help: "Current number of event IDs held by the dedup cache",
			},
		),

		LLMRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nutri_llm_requests_total",
				Help: "Total number of generation API calls by provider and status",
			},
			[]string{"provider", "status"}, // status: success, error, empty
		),

		LLMDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nutri_llm_duration_seconds",
				Help:    "Generation API call duration in seconds by provider",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"provider"},
		),

		StoreOpsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nutri_store_ops_total",
				Help: "Total number of document store operations by operation and status",
			},
			[]string{"op", "status"}, // op: get_profile, merge_profile, append_history, recent_history, append_record, aggregate
		),

		ExtractedTagsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nutri_extracted_tags_total",
				Help: "Total number of control tags extracted from generated text by tag and status",
			},
			[]string{"tag", "status"}, // status: parsed, malformed
		),

		DeliveriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nutri_deliveries_total",
				Help: "Total number of delivery attempts by mode and status",
			},
			[]string{"mode", "status"}, // mode: reply, push
		),
	}

	return m
}

// RecordWebhookEvent records a processed webhook event with its duration.
func (m *Metrics) RecordWebhookEvent(eventType, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(eventType, status).Inc()
	if durationSeconds > 0 {
		m.WebhookDurationSeconds.WithLabelValues(eventType).Observe(durationSeconds)
	}
}

// ReportDedupCacheSize sets the dedup cache size gauge. Implements
// the dedup package's SizeReporter.
func (m *Metrics) ReportDedupCacheSize(n int) {
	if m == nil {
		return
	}
	m.DedupCacheSize.Set(float64(n))
}

// RecordDedupSuppressed records a duplicate event suppression.
func (m *Metrics) RecordDedupSuppressed() {
	if m == nil {
		return
	}
	m.DedupSuppressedTotal.Inc()
}

// RecordLLMRequest records a generation API call.
func (m *Metrics) RecordLLMRequest(provider, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(provider, status).Inc()
	if durationSeconds > 0 {
		m.LLMDurationSeconds.WithLabelValues(provider).Observe(durationSeconds)
	}
}

// RecordStoreOp records a document store operation.
func (m *Metrics) RecordStoreOp(op, status string) {
	if m == nil {
		return
	}
	m.StoreOpsTotal.WithLabelValues(op, status).Inc()
}

// RecordExtractedTag records an extracted control tag.
func (m *Metrics) RecordExtractedTag(tag, status string) {
	if m == nil {
		return
	}
	m.ExtractedTagsTotal.WithLabelValues(tag, status).Inc()
}

// RecordDelivery records a delivery attempt.
func (m *Metrics) RecordDelivery(mode, status string) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(mode, status).Inc()
}
