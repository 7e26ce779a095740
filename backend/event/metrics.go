package event

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type busMetrics struct {
	published    *prometheus.CounterVec
	delivered    *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	roundLatency prometheus.Histogram
}

func newBusMetrics(registry *prometheus.Registry) *busMetrics {
	if registry == nil {
		return nil
	}

	metrics := &busMetrics{
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_events_published_total",
				Help: "Total number of events published by event type",
			},
			[]string{"event_type"},
		),
		delivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_events_delivered_total",
				Help: "Total number of events delivered by event type",
			},
			[]string{"event_type"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_events_dropped_total",
				Help: "Total number of events dropped due to full buffers",
			},
			[]string{"event_type"},
		),
		roundLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chat_tool_round_duration_seconds",
				Help:    "Duration of a single tool round including tool execution",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
	}

	registry.MustRegister(
		metrics.published,
		metrics.delivered,
		metrics.dropped,
		metrics.roundLatency,
	)

	return metrics
}

func (m *busMetrics) IncrementPublished(eventType string) {
	if m != nil && m.published != nil {
		m.published.WithLabelValues(eventType).Inc()
	}
}

func (m *busMetrics) IncrementDelivered(eventType string) {
	if m != nil && m.delivered != nil {
		m.delivered.WithLabelValues(eventType).Inc()
	}
}

func (m *busMetrics) IncrementDropped(eventType string) {
	if m != nil && m.dropped != nil {
		m.dropped.WithLabelValues(eventType).Inc()
	}
}

func (m *busMetrics) ObserveRoundLatency(duration time.Duration) {
	if m != nil && m.roundLatency != nil {
		m.roundLatency.Observe(duration.Seconds())
	}
}
