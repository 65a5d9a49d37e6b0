package metrics

import "github.com/prometheus/client_golang/prometheus"

// Reserve outcomes.
const (
	OutcomeReserved    = "reserved"
	OutcomeConflict    = "conflict"
	OutcomeNotFound    = "not_found"
	OutcomeUnconfirmed = "unconfirmed"
	OutcomeError       = "error"
)

// BookingMetrics exposes counters/histograms for slot booking and triage.
type BookingMetrics struct {
	reserveTotal      *prometheus.CounterVec
	reserveLatency    *prometheus.HistogramVec
	releaseTotal      *prometheus.CounterVec
	appointmentsTotal *prometheus.CounterVec
	triageTotal       *prometheus.CounterVec
	strandedTotal     prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reserveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "reserve_total",
			Help:      "Slot reservation attempts by outcome",
		}, []string{"outcome"}),
		reserveLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "reserve_latency_seconds",
			Help:      "Latency of the conditional reserve write",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		releaseTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "release_total",
			Help:      "Slot releases by result",
		}, []string{"result"}),
		appointmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "appointments_total",
			Help:      "Appointment lifecycle transitions",
		}, []string{"transition"}),
		triageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "triage_total",
			Help:      "Triage classifications by priority level",
		}, []string{"level"}),
		strandedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "stranded_total",
			Help:      "Reservations whose appointment write failed",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reserveTotal, m.reserveLatency, m.releaseTotal, m.appointmentsTotal, m.triageTotal, m.strandedTotal)
	return m
}

func (m *BookingMetrics) ObserveReserve(outcome string) {
	if m == nil {
		return
	}
	m.reserveTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveReserveLatency(backend string, seconds float64) {
	if m == nil {
		return
	}
	m.reserveLatency.WithLabelValues(backend).Observe(seconds)
}

func (m *BookingMetrics) ObserveRelease(released bool) {
	if m == nil {
		return
	}
	label := "noop"
	if released {
		label = "released"
	}
	m.releaseTotal.WithLabelValues(label).Inc()
}

func (m *BookingMetrics) ObserveTransition(transition string) {
	if m == nil {
		return
	}
	m.appointmentsTotal.WithLabelValues(transition).Inc()
}

func (m *BookingMetrics) ObserveTriage(level string) {
	if m == nil {
		return
	}
	m.triageTotal.WithLabelValues(level).Inc()
}

func (m *BookingMetrics) ObserveStranded() {
	if m == nil {
		return
	}
	m.strandedTotal.Inc()
}
