package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "carrental"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	availabilitySearches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_searches_total",
			Help:      "Car availability searches by result.",
		},
		[]string{"result"},
	)

	ledgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Guarantor ledger operations by kind and result.",
		},
		[]string{"op", "result"},
	)

	ledgerTasks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_tasks",
			Help:      "Ledger retry tasks observed in the last worker cycle.",
		},
		[]string{"status"},
	)

	bookingEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_events_total",
			Help:      "Booking lifecycle events by type.",
		},
		[]string{"type"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, availabilitySearches, ledgerOps, ledgerTasks, bookingEvents)
	})
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncAvailability(result string) {
	availabilitySearches.WithLabelValues(result).Inc()
}

// IncLedger records a ledger operation outcome ("ok", "skipped", "failed").
func IncLedger(op, result string) {
	ledgerOps.WithLabelValues(op, result).Inc()
}

func SetLedgerTasks(status string, n int) {
	ledgerTasks.WithLabelValues(status).Set(float64(n))
}

func IncBookingEvent(eventType string) {
	bookingEvents.WithLabelValues(eventType).Inc()
}
