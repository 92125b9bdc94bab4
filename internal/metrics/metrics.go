package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for the booking engine.
type EngineMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	lockContention   prometheus.Counter
	remindersSent    prometheus.Counter
	reportsGenerated prometheus.Counter
	bookingLatency   prometheus.Histogram
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbook",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicbook",
			Subsystem: "booking",
			Name:      "lock_contention_total",
			Help:      "Booking attempts that failed to acquire the doctor lock",
		}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicbook",
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Reminders marked sent",
		}),
		reportsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicbook",
			Subsystem: "reports",
			Name:      "generated_total",
			Help:      "Monthly reports generated or regenerated",
		}),
		bookingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicbook",
			Subsystem: "booking",
			Name:      "latency_seconds",
			Help:      "Latency of the validate-and-book path",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.lockContention, m.remindersSent, m.reportsGenerated, m.bookingLatency)
	return m
}

func (m *EngineMetrics) ObserveBooking(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
	m.bookingLatency.Observe(seconds)
}

func (m *EngineMetrics) ObserveLockContention() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}

func (m *EngineMetrics) ObserveReminderSent() {
	if m == nil {
		return
	}
	m.remindersSent.Inc()
}

func (m *EngineMetrics) ObserveReportGenerated() {
	if m == nil {
		return
	}
	m.reportsGenerated.Inc()
}
