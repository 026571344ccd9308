// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Order Metrics
	OrdersPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of order rows written",
		},
		[]string{"payment_method"},
	)

	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Applied fulfillment status transitions",
		},
		[]string{"to", "actor"},
	)

	// Provider Metrics
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_provider_requests_total",
			Help: "Outbound provider calls by outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)

	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_provider_request_duration_seconds",
			Help:    "Outbound provider call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	ShippingFeeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_shipping_fee_failures_total",
			Help: "Fee lookups that fell back to zero",
		},
	)

	// Payment Metrics
	PaymentSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_payment_sessions_total",
			Help: "Payment sessions by terminal state",
		},
		[]string{"state"},
	)

	PaymentSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_payment_signals_total",
			Help: "Redirect signals received by channel and result",
		},
		[]string{"channel", "result"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_payment_stream_connections",
			Help: "Open payment status websocket connections",
		},
	)
)

// RecordAPIRequest records an HTTP request with its duration.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordProviderCall records an outbound provider call.
func RecordProviderCall(provider, operation string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	ProviderRequests.WithLabelValues(provider, operation, outcome).Inc()
	ProviderDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}
