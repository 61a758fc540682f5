package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weatherlookup/internal/observability"
)

// NewRouter wires handlers and middleware. Weather and search routes are rate
// limited and carry the request timeout; health, settings and metrics are not.
func NewRouter(h *Handler, limiter *rate.Limiter, requestTimeout time.Duration, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")
	router.HandleFunc("/settings", h.GetSettings).Methods("GET")
	router.HandleFunc("/settings", h.PutSettings).Methods("PUT")

	limited := router.NewRoute().Subrouter()
	limited.Use(RateLimitMiddleware(limiter))
	limited.Use(TimeoutMiddleware(requestTimeout))
	limited.HandleFunc("/weather", h.GetWeather).Methods("GET")
	limited.HandleFunc("/weather/coordinates", h.GetWeatherByCoordinates).Methods("GET")
	limited.HandleFunc("/search", h.GetSearch).Methods("GET")
	return router
}
