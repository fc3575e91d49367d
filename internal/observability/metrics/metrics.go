package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for admission and slot flows.
type BookingMetrics struct {
	admissionsTotal      *prometheus.CounterVec
	cancellationsTotal   prometheus.Counter
	capacityChangesTotal *prometheus.CounterVec
	admissionLatency     *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		admissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bitecare",
			Subsystem: "bookings",
			Name:      "admissions_total",
			Help:      "Booking requests by outcome",
		}, []string{"outcome"}),
		cancellationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bitecare",
			Subsystem: "bookings",
			Name:      "cancellations_total",
			Help:      "Bookings moved to cancelled",
		}),
		capacityChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bitecare",
			Subsystem: "slots",
			Name:      "capacity_changes_total",
			Help:      "Slot configuration writes by kind",
		}, []string{"kind"}),
		admissionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bitecare",
			Subsystem: "bookings",
			Name:      "admission_latency_seconds",
			Help:      "Time spent admitting or rejecting a booking, lock wait included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.admissionsTotal, m.cancellationsTotal, m.capacityChangesTotal, m.admissionLatency)
	return m
}

// ObserveAdmission records one booking request. outcome is one of admitted,
// invalid, capacity_exceeded, no_capacity_configured, cancelled, error.
func (m *BookingMetrics) ObserveAdmission(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.admissionsTotal.WithLabelValues(outcome).Inc()
	m.admissionLatency.WithLabelValues(outcome).Observe(seconds)
}

func (m *BookingMetrics) ObserveCancellation() {
	if m == nil {
		return
	}
	m.cancellationsTotal.Inc()
}

// ObserveCapacityChange counts slot writes; kind is configured, updated or removed.
func (m *BookingMetrics) ObserveCapacityChange(kind string) {
	if m == nil {
		return
	}
	m.capacityChangesTotal.WithLabelValues(kind).Inc()
}
