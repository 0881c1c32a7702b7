package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "movebot"

// Metrics groups the Prometheus instruments of the dialogue service. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Turns            *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	OracleFailures   *prometheus.CounterVec
	FAQHits          prometheus.Counter
	SessionEvents    *prometheus.CounterVec
	BookingConfirmed prometheus.Counter
	StepLatency      *prometheus.HistogramVec
}

// New registers the instruments on a private registry so several services can live in
// one process (tests do this).
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Handled utterances by channel and outcome.",
		}, []string{"channel", "outcome"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Dialogue state transitions.",
		}, []string{"from", "to"}),
		OracleFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_failures_total",
			Help:      "Soft oracle failures by oracle.",
		}, []string{"oracle"}),
		FAQHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faq_hits_total",
			Help:      "Utterances answered from the FAQ.",
		}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		BookingConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_confirmed_total",
			Help:      "Bookings confirmed by the customer.",
		}),
		StepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "End-to-end latency of one utterance in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000},
		}, []string{"channel"}),
	}
}

// Turn records one handled utterance.
func (m *Metrics) Turn(channel, outcome, from, to, oracle string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(channel, outcome).Inc()
	if from != to {
		m.Transitions.WithLabelValues(from, to).Inc()
	}
	switch outcome {
	case "faq":
		m.FAQHits.Inc()
	case "oracle_failure":
		m.OracleFailures.WithLabelValues(oracle).Inc()
	}
	m.StepLatency.WithLabelValues(channel).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) SessionStarted() { m.sessionEvent("started", 1) }

func (m *Metrics) SessionEnded() { m.sessionEvent("ended", 1) }

func (m *Metrics) SessionsSwept(n int) { m.sessionEvent("swept", n) }

func (m *Metrics) Booking() {
	if m == nil {
		return
	}
	m.BookingConfirmed.Inc()
}

func (m *Metrics) sessionEvent(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionEvents.WithLabelValues(event).Add(float64(n))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
