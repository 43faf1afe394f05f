package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for booking and join flows.
type BookingMetrics struct {
	bookingAttempts *prometheus.CounterVec
	bookingDuration *prometheus.HistogramVec
	slotQueries     *prometheus.CounterVec
	joinTokens      *prometheus.CounterVec
	orphanedSession prometheus.Counter
	lockFallbacks   prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		bookingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telehealth",
			Subsystem: "booking",
			Name:      "duration_seconds",
			Help:      "Time spent booking an appointment",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		slotQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "slots",
			Name:      "queries_total",
			Help:      "Available-slot queries by outcome",
		}, []string{"outcome"}),
		joinTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "video",
			Name:      "join_tokens_total",
			Help:      "Join token requests by outcome",
		}, []string{"outcome"}),
		orphanedSession: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "video",
			Name:      "orphaned_sessions_total",
			Help:      "Video sessions created for bookings that were not persisted",
		}),
		lockFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telehealth",
			Subsystem: "booking",
			Name:      "lock_fallbacks_total",
			Help:      "Bookings run without the doctor lock because its backend failed",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingAttempts, m.bookingDuration, m.slotQueries, m.joinTokens, m.orphanedSession, m.lockFallbacks)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookingAttempts.WithLabelValues(outcome).Inc()
	m.bookingDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *BookingMetrics) ObserveSlotQuery(outcome string) {
	if m == nil {
		return
	}
	m.slotQueries.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveJoinToken(outcome string) {
	if m == nil {
		return
	}
	m.joinTokens.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) IncOrphanedSession() {
	if m == nil {
		return
	}
	m.orphanedSession.Inc()
}

func (m *BookingMetrics) IncLockFallback() {
	if m == nil {
		return
	}
	m.lockFallbacks.Inc()
}
