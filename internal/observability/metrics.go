// Package observability exposes the console's Prometheus metrics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the console.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	backendCalls    *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	sessionExpiries prometheus.Counter
}

// NewMetrics initialises the registry and the base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopadmin_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopadmin_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	backendCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopadmin_backend_requests_total",
		Help: "Calls to the commerce API by endpoint and status.",
	}, []string{"endpoint", "code"})
	backendDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopadmin_backend_request_duration_seconds",
		Help:    "Commerce API call duration per endpoint.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
	expiries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shopadmin_session_expiries_total",
		Help: "Sign-outs forced by the commerce API rejecting credentials.",
	})
	registry.MustRegister(requests, duration, backendCalls, backendDuration, expiries)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		backendCalls:    backendCalls,
		backendDuration: backendDuration,
		sessionExpiries: expiries,
	}
}

// Handler returns the http.Handler for /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveBackend records one commerce API call. Status 0 means the call never
// got a response.
func (m *Metrics) ObserveBackend(endpoint string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.backendCalls.WithLabelValues(endpoint, code).Inc()
	m.backendDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// SessionExpired counts a forced sign-out.
func (m *Metrics) SessionExpired() {
	if m == nil {
		return
	}
	m.sessionExpiries.Inc()
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
