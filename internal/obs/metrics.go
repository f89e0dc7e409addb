package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Authentication failures by internal reason.",
		},
		[]string{"reason"},
	)

	tenantLockDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_lock_denials_total",
			Help: "Requests denied by the tenant lock gate, by school status.",
		},
		[]string{"status"},
	)

	realtimeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_sessions",
		Help: "Open authenticated realtime sessions.",
	})
)

// Init registers metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		authFailuresTotal,
		tenantLockDenialsTotal,
		realtimeSessions,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountAuthFailure increments the internal failure counter. Reasons stay
// coarse (no_token, invalid, expired, revoked) so labels stay bounded.
func CountAuthFailure(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}

// CountTenantDenial increments the lock-gate denial counter.
func CountTenantDenial(status string) {
	tenantLockDenialsTotal.WithLabelValues(status).Inc()
}

// RealtimeSessionOpened / RealtimeSessionClosed track the session gauge.
func RealtimeSessionOpened() { realtimeSessions.Inc() }
func RealtimeSessionClosed() { realtimeSessions.Dec() }

// CanonicalPath collapses per-entity path segments so metric labels stay
// bounded.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	for _, prefix := range [][]string{
		{"", "api", "students"},
		{"", "api", "platform", "schools"},
	} {
		if len(segments) > len(prefix) && hasPrefixSegments(segments, prefix) {
			segments[len(prefix)] = ":id"
			return strings.Join(segments, "/")
		}
	}
	return path
}

func hasPrefixSegments(segments, prefix []string) bool {
	for i, p := range prefix {
		if segments[i] != p {
			return false
		}
	}
	return true
}

// Instrument wraps a handler with RPS, latency and in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter records the response code.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
