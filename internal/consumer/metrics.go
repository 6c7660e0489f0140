package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Consume results.
const (
	resultHandled      = "handled"
	resultHandlerError = "handler_error"
	resultMalformed    = "malformed"
)

// malformedEventType labels records whose event type could not be decoded.
const malformedEventType = "unknown"

var (
	consumedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "habit_ledger",
		Subsystem: "consumer",
		Name:      "events_total",
		Help:      "Habit events read from Kafka, by topic, event type and result.",
	}, []string{"topic", "event_type", "result"})

	eventLag = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "habit_ledger",
		Subsystem: "consumer",
		Name:      "event_lag_seconds",
		Help:      "Delay between a habit event being published and being handled.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(consumedEvents, eventLag)
}

func recordHandled(msg Message, now time.Time) {
	consumedEvents.WithLabelValues(msg.Topic, msg.EventType, resultHandled).Inc()
	if !msg.Timestamp.IsZero() {
		eventLag.WithLabelValues(msg.EventType).Observe(max(now.Sub(msg.Timestamp).Seconds(), 0))
	}
}

func recordHandlerError(msg Message) {
	consumedEvents.WithLabelValues(msg.Topic, msg.EventType, resultHandlerError).Inc()
}

func recordMalformed(topic string) {
	consumedEvents.WithLabelValues(topic, malformedEventType, resultMalformed).Inc()
}
