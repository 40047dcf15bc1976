package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRouteUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fernglas_store_route_updates_total",
		Help: "Number of route updates applied to the store.",
	})
	metricRouteWithdraws = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fernglas_store_route_withdraws_total",
		Help: "Number of route withdraws applied to the store.",
	})
	metricQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fernglas_store_queries_total",
		Help: "Number of route queries served, by match mode.",
	}, []string{"mode"})
)
