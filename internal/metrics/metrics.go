// Package metrics registers the Prometheus metrics exported by ferroinfer.
// All collectors are registered on the default registry at import time, so
// the /metrics handler sees them as soon as the server package is linked.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup outcomes used as the "result" label of CacheLookups.
const (
	LookupHit       = "hit"
	LookupMiss      = "miss"
	LookupCoalesced = "coalesced"
)

// HTTP-level counters and histograms.
var (
	// RequestsTotal counts completed HTTP requests labelled by route pattern
	// and status code.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferroinfer_http_requests_total",
			Help: "Total number of HTTP requests served.",
		},
		[]string{"route", "status"},
	)

	// RequestDuration observes end-to-end request latency in seconds.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ferroinfer_http_request_duration_seconds",
			Help:    "End-to-end HTTP request duration in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"route"},
	)
)

// Engine and model metrics.
var (
	// CacheLookups counts prediction lookups by outcome, one per caller.
	// "hit" is served from the LRU, "miss" starts a classifier computation and
	// "coalesced" waited on a computation another caller started.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferroinfer_cache_lookups_total",
			Help: "Prediction cache lookups by result.",
		},
		[]string{"result"},
	)

	// CacheEvictions counts entries dropped to stay within capacity.
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ferroinfer_cache_evictions_total",
		Help: "Prediction cache entries evicted by the LRU policy.",
	})

	// CacheEntries is the current number of completed cache entries.
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ferroinfer_cache_entries",
		Help: "Number of completed predictions currently cached.",
	})

	// InflightComputations is the number of distinct texts being classified.
	InflightComputations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ferroinfer_inflight_computations",
		Help: "Classifier computations currently running.",
	})

	// InferenceDuration observes the latency of a single classifier call.
	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ferroinfer_inference_duration_seconds",
		Help:    "Classifier call duration in seconds.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	// InferenceErrors counts failed classifier calls by kind
	// ("not_initialized", "inference", "dispatch", "other").
	InferenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferroinfer_inference_errors_total",
			Help: "Failed classifier computations by error kind.",
		},
		[]string{"kind"},
	)

	// ModelLoaded is 1 while the model handle is loaded, 0 otherwise.
	ModelLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ferroinfer_model_loaded",
		Help: "Whether the classifier model is loaded (1) or not (0).",
	})

	// BuildInfo is a constant 1 labelled with the running build.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ferroinfer_build_info",
			Help: "Build information of the running binary.",
		},
		[]string{"version", "commit"},
	)
)

// Middleware records RequestsTotal and RequestDuration for every request.
// Requests are labelled by their chi route pattern so that path parameters
// do not blow up label cardinality; unmatched requests use "unmatched".
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
