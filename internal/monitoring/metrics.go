package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Operational metrics for the coordination core
var (
	OrdersConfirmed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_confirmed_total",
			Help: "Orders confirmed and sent to preparation",
		},
	)

	OrdersVoided = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_voided_total",
			Help: "Orders voided in any state",
		},
	)

	OutOfStockRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "out_of_stock_rejections_total",
			Help: "Reservation attempts rejected for insufficient stock",
		},
	)

	TicketsRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_routed_total",
			Help: "Station work tickets created by the routing engine",
		},
		[]string{"destination"},
	)

	OpenSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "open_sessions",
			Help: "Tab sessions currently open",
		},
	)

	ActiveReservations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_reservations",
			Help: "Stock units held by uncommitted reservations across all items",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersConfirmed,
		OrdersVoided,
		OutOfStockRejections,
		TicketsRouted,
		OpenSessions,
		ActiveReservations,
	)
}
