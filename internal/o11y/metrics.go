package o11y

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the booking domain counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reservations    *prometheus.CounterVec
	rollbacks       *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	cancellations   prometheus.Counter
	slotsGenerated  prometheus.Counter
	slotsPurged     prometheus.Counter
	publishFailures *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservations_total",
			Help: "Reservation attempts by request kind and outcome",
		}, []string{"kind", "outcome"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservation_rollbacks_total",
			Help: "Compensating actions taken after a partial reservation",
		}, []string{"action", "result"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_decisions_total",
			Help: "Owner decisions applied to bookings",
		}, []string{"action"}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booking_cancellations_total",
			Help: "Bookings cancelled by their user",
		}),
		slotsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slots_generated_total",
			Help: "Slots inserted by the generator",
		}),
		slotsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slots_purged_total",
			Help: "Future slots removed by regeneration",
		}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_publish_failures_total",
			Help: "Lifecycle events that could not be published",
		}, []string{"event"}),
	}
	reg.MustRegister(m.reservations, m.rollbacks, m.decisions, m.cancellations,
		m.slotsGenerated, m.slotsPurged, m.publishFailures)
	return m
}

func (m *Metrics) Reservation(kind, outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Rollback(action string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.rollbacks.WithLabelValues(action, result).Inc()
}

func (m *Metrics) Decision(action string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(action).Inc()
}

func (m *Metrics) Cancellation() {
	if m == nil {
		return
	}
	m.cancellations.Inc()
}

func (m *Metrics) SlotsGenerated(created, purged int) {
	if m == nil {
		return
	}
	m.slotsGenerated.Add(float64(created))
	m.slotsPurged.Add(float64(purged))
}

func (m *Metrics) PublishFailure(event string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(event).Inc()
}
