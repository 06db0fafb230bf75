package main

import (
	"net/http"

	"github.com/ferro-labs/ferroinfer/internal/api"
	"github.com/ferro-labs/ferroinfer/internal/logging"
	"github.com/ferro-labs/ferroinfer/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newRouter builds the HTTP router.
func newRouter(handlers *api.Handlers, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware)
	r.Use(logging.AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(corsOrigins...))
	r.Use(metrics.Middleware)

	r.Handle("/metrics", promhttp.Handler())

	// Mounted last so its JSON 404/405 handlers cover every other path.
	r.Mount("/", handlers.Routes())

	return r
}
