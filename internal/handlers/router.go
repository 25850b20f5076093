package handlers

import (
	"github.com/gorilla/mux"

	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

// NewRouter wires every route behind the request-ID and recovery middleware.
func NewRouter(api *APIHandler, charts *ChartHandler, dashboard *DashboardHandler, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestContext(logger), Recover(logger, metricsCollector))

	dashboard.RegisterRoutes(router)
	api.RegisterRoutes(router)
	charts.RegisterRoutes(router)
	RegisterDocsRoutes(router)

	// Prometheus metrics endpoint
	router.Handle("/metrics", metricsCollector.Handler()).Methods("GET")
	return router
}
