package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncGeneration("preview", "single", "ok")
	m.IncGeneration("preview", "single", "ok")
	m.IncReminder("first", "sent")
	m.ObserveConversion(2*time.Second, true)
	m.ConversionStarted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Generations.WithLabelValues("preview", "single", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reminders.WithLabelValues("first", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConversionsInFlight))
	m.ConversionFinished()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ConversionsInFlight))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncGeneration("generate", "single", "ok")
		m.ObserveConversion(time.Second, false)
		m.ConversionStarted()
		m.ConversionFinished()
		m.IncReminder("second", "failed")
	})
}
