// Package metrics exposes Prometheus collectors for document generation and
// reminder runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Generation outcomes by action, mode and result
	Generations *prometheus.CounterVec

	// Conversion latency, split by success
	ConversionLatency *prometheus.HistogramVec

	// Conversions currently holding a pool slot
	ConversionsInFlight prometheus.Gauge

	// Reminder notifications by kind and result
	Reminders *prometheus.CounterVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Generations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cosec_document_generations_total",
			Help: "Document generation requests by action, mode and result",
		}, []string{"action", "mode", "result"}),

		ConversionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cosec_document_conversion_duration_seconds",
			Help:    "Duration of external DOCX to PDF conversions",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"result"}),

		ConversionsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cosec_document_conversions_in_flight",
			Help: "Conversions currently running",
		}),

		Reminders: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cosec_reminders_total",
			Help: "Reminder notifications by kind and result",
		}, []string{"kind", "result"}),
	}
}

// IncGeneration records the outcome of one generation request.
func (m *Metrics) IncGeneration(action, mode, result string) {
	if m != nil {
		m.Generations.WithLabelValues(action, mode, result).Inc()
	}
}

// ObserveConversion records how long a conversion took.
func (m *Metrics) ObserveConversion(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.ConversionLatency.WithLabelValues(result).Observe(d.Seconds())
}

// ConversionStarted and ConversionFinished bracket a running conversion.
func (m *Metrics) ConversionStarted() {
	if m != nil {
		m.ConversionsInFlight.Inc()
	}
}

func (m *Metrics) ConversionFinished() {
	if m != nil {
		m.ConversionsInFlight.Dec()
	}
}

// IncReminder records one reminder outcome: sent, skipped or failed.
func (m *Metrics) IncReminder(kind, result string) {
	if m != nil {
		m.Reminders.WithLabelValues(kind, result).Inc()
	}
}
