// Package api exposes the HTTP surface: sample ingestion, alert lifecycle,
// and on-demand reports and health scores.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calder-health/biosense/internal/analytics"
	"github.com/calder-health/biosense/internal/cache"
	"github.com/calder-health/biosense/internal/storage"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biosense_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "biosense_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// ServiceFactory builds a per-user analytics service. The HTTP layer calls
// it once per report or score request.
type ServiceFactory func(userID string) (*analytics.Service, error)

// Server holds the dependencies shared by all handlers. The report cache
// may be nil, in which case every report is computed fresh.
type Server struct {
	store      *storage.Storage
	reports    *cache.ReportCache
	newService ServiceFactory
}

// NewServer wires the handler dependencies.
func NewServer(store *storage.Storage, reports *cache.ReportCache, factory ServiceFactory) *Server {
	return &Server{
		store:      store,
		reports:    reports,
		newService: factory,
	}
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Path("/metrics").Handler(promhttp.Handler())

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/users/{id}/samples", s.handleIngestSamples).Methods("POST")
	v1.HandleFunc("/users/{id}/alerts", s.handleListAlerts).Methods("GET")
	v1.HandleFunc("/users/{id}/report", s.handleReport).Methods("GET")
	v1.HandleFunc("/users/{id}/score", s.handleScore).Methods("GET")
	v1.HandleFunc("/alerts/{id}/acknowledge", s.handleAlertTransition).Methods("POST")
	v1.HandleFunc("/alerts/{id}/resolve", s.handleAlertTransition).Methods("POST")
	v1.HandleFunc("/alerts/{id}/dismiss", s.handleAlertTransition).Methods("POST")

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latency per route template.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		httpRequestDurationSeconds.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}
