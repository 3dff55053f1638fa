// Package monitoring exposes Prometheus metrics for the booking engine.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_reservations_total",
		Help: "Reservation attempts partitioned by mode and outcome.",
	}, []string{"mode", "status"})

	seatHoldsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_seat_holds_total",
		Help: "Individual seats held, released or lost to contention.",
	}, []string{"status"})

	bookingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_bookings_total",
		Help: "Booking attempts partitioned by outcome.",
	}, []string{"status"})

	paymentChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_payment_charges_total",
		Help: "Payment charges partitioned by gateway status.",
	}, []string{"status"})

	bookingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "booking_duration_seconds",
		Help:    "End-to-end latency of the booking flow.",
		Buckets: prometheus.DefBuckets,
	})
)

// Monitor is the handle the rest of the engine uses to record metrics.
// A zero Monitor is valid; all methods write to package-level collectors
// registered with the default registry.
type Monitor struct{}

// New returns a Monitor.
func New() *Monitor { return &Monitor{} }

// TrackReservation records one reservation attempt.
func (m *Monitor) TrackReservation(mode, status string) {
	reservationsTotal.WithLabelValues(mode, status).Inc()
}

// TrackSeatHolds records n seats sharing one outcome.
func (m *Monitor) TrackSeatHolds(status string, n int) {
	seatHoldsTotal.WithLabelValues(status).Add(float64(n))
}

// TrackBooking records one booking attempt.
func (m *Monitor) TrackBooking(status string) {
	bookingsTotal.WithLabelValues(status).Inc()
}

// TrackCharge records one payment gateway call.
func (m *Monitor) TrackCharge(status string) {
	paymentChargesTotal.WithLabelValues(status).Inc()
}

// TrackBookingDuration records the wall-clock time of one booking flow.
func (m *Monitor) TrackBookingDuration(start time.Time) {
	bookingDuration.Observe(time.Since(start).Seconds())
}
