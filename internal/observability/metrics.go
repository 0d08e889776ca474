// README: Prometheus metrics for the matching workflow and HTTP layer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreatedTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "cartpool", Name: "rides_created_total", Help: "Total rides offered"})
	RidesCancelled     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "cartpool", Name: "rides_cancelled_total", Help: "Total rides cancelled"})
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "cartpool", Name: "orders_created_total", Help: "Total orders placed"})
	OrdersAccepted     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "cartpool", Name: "orders_accepted_total", Help: "Total orders accepted by shoppers"})
	OrdersDeclined     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "cartpool", Name: "orders_declined_total", Help: "Total orders declined, including cascade declines"})
	OrdersDelivered    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "cartpool", Name: "orders_delivered_total", Help: "Total orders delivered"})
	ShopperRatings     = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cartpool",
		Name:      "shopper_rating_stars",
		Help:      "Distribution of shopper ratings",
		Buckets:   []float64{1, 2, 3, 4, 5},
	})
	LeadsRegistered = promauto.NewCounter(prometheus.CounterOpts{Namespace: "cartpool", Name: "leads_registered_total", Help: "Total leads registered"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "cartpool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cartpool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
