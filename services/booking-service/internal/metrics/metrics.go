package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "booking"
	subsystem = "engine"
)

// Metrics holds the engine's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Bookings           *prometheus.CounterVec
	AvailabilityChecks *prometheus.CounterVec
	SlotQueries        *prometheus.CounterVec
	SlotQueryLatency   *prometheus.HistogramVec
	StatusTransitions  *prometheus.CounterVec
	OutboxPublished    *prometheus.CounterVec
	OutboxFailed       prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Bookings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		AvailabilityChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "availability_checks_total",
			Help:      "Exact-interval availability checks by result",
		}, []string{"result"}),
		SlotQueries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "slot_queries_total",
			Help:      "Slot listing queries by scope",
		}, []string{"scope"}),
		SlotQueryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "slot_query_duration_seconds",
			Help:      "Duration of slot listing queries",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"scope"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "status_transitions_total",
			Help:      "Appointment status transition attempts",
		}, []string{"to", "outcome"}),
		OutboxPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_published_total",
			Help:      "Outbox events published to Kafka",
		}, []string{"event_type"}),
		OutboxFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_failed_total",
			Help:      "Outbox publish attempts that failed",
		}),
	}
}

func (m *Metrics) Booking(outcome string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AvailabilityCheck(available bool) {
	if m == nil {
		return
	}
	result := "unavailable"
	if available {
		result = "available"
	}
	m.AvailabilityChecks.WithLabelValues(result).Inc()
}

func (m *Metrics) SlotQuery(scope string, started time.Time) {
	if m == nil {
		return
	}
	m.SlotQueries.WithLabelValues(scope).Inc()
	m.SlotQueryLatency.WithLabelValues(scope).Observe(time.Since(started).Seconds())
}

func (m *Metrics) Transition(to, outcome string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(to, outcome).Inc()
}

func (m *Metrics) Published(eventType string) {
	if m == nil {
		return
	}
	m.OutboxPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.OutboxFailed.Inc()
}
