package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flight_reservation"

// Metrics holds all prometheus metrics of the reservation core.
// All recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	SeatHolds         *prometheus.CounterVec
	SessionsExpired   prometheus.Counter
	Transitions       *prometheus.CounterVec
	TransitionLatency prometheus.Histogram
	Refunds           *prometheus.CounterVec
	ConsistencyAlerts prometheus.Counter
}

// NewMetrics creates the metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SeatHolds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seat_holds_total",
			Help:      "Seat hold attempts by result",
		}, []string{"result"}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Reservation sessions that reached their TTL",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_transitions_total",
			Help:      "Payment ledger transitions by edge and result",
		}, []string{"from", "to", "result"}),
		TransitionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_transition_seconds",
			Help:      "Time taken to apply a payment transition",
			Buckets:   prometheus.DefBuckets,
		}),
		Refunds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund decisions by outcome",
		}, []string{"outcome"}),
		ConsistencyAlerts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consistency_alerts_total",
			Help:      "Bookings whose status diverged from their payment",
		}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SeatHold(result string) {
	if m == nil {
		return
	}
	m.SeatHolds.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionExpired() {
	if m == nil {
		return
	}
	m.SessionsExpired.Inc()
}

func (m *Metrics) Transition(from, to, result string, seconds float64) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to, result).Inc()
	m.TransitionLatency.Observe(seconds)
}

func (m *Metrics) Refund(outcome string) {
	if m == nil {
		return
	}
	m.Refunds.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ConsistencyAlert() {
	if m == nil {
		return
	}
	m.ConsistencyAlerts.Inc()
}
