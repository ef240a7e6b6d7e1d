package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the scheduling flows.
type BookingMetrics struct {
	operationsTotal  *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	holdsCreated     prometheus.Counter
	holdsReleased    *prometheus.CounterVec
	cleanupFailures  *prometheus.CounterVec
	toolCalls        *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receptionist",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking operations by action and outcome",
		}, []string{"action", "status"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "receptionist",
			Subsystem: "booking",
			Name:      "operation_latency_seconds",
			Help:      "Latency of booking operations including calendar calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		holdsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receptionist",
			Subsystem: "holds",
			Name:      "created_total",
			Help:      "Tentative holds created",
		}),
		holdsReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receptionist",
			Subsystem: "holds",
			Name:      "released_total",
			Help:      "Tentative holds released, by reason",
		}, []string{"reason"}),
		cleanupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receptionist",
			Subsystem: "booking",
			Name:      "cleanup_failures_total",
			Help:      "Best-effort calendar or CRM calls that failed",
		}, []string{"kind"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receptionist",
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Voice agent tool invocations",
		}, []string{"tool", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.operationLatency, m.holdsCreated, m.holdsReleased, m.cleanupFailures, m.toolCalls)
	return m
}

func (m *BookingMetrics) ObserveOperation(action, status string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(action, status).Inc()
	m.operationLatency.WithLabelValues(action).Observe(seconds)
}

func (m *BookingMetrics) ObserveHoldsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.holdsCreated.Add(float64(n))
}

// ObserveHoldsReleased counts holds removed because a sibling won ("sibling")
// or the TTL lapsed ("expired").
func (m *BookingMetrics) ObserveHoldsReleased(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.holdsReleased.WithLabelValues(reason).Add(float64(n))
}

func (m *BookingMetrics) ObserveCleanupFailure(kind string) {
	if m == nil {
		return
	}
	m.cleanupFailures.WithLabelValues(kind).Inc()
}

func (m *BookingMetrics) ObserveToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, status).Inc()
}
