package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP and security-core metrics.
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

	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome (success, invalid, rate_limited, suspended, mfa_pending).",
		},
		[]string{"outcome"},
	)

	policyDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_policy_denials_total",
			Help: "Authorization denials by role.",
		},
		[]string{"role"},
	)

	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "auth_sessions_active",
		Help: "Sessions currently believed active (maintained by the sweeper).",
	})

	auditEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Audit events recorded by type.",
		},
		[]string{"type"},
	)

	auditDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_events_dropped_total",
		Help: "Audit events dropped because the pipeline was saturated or failing.",
	})

	securityAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_alerts_total",
			Help: "Security alerts emitted by anomaly flag.",
		},
		[]string{"flag"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the readiness probe last succeeded, 0 otherwise.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginAttempts, policyDenials, sessionsActive,
		auditEvents, auditDropped, securityAlerts, readyGauge,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountLogin records a login attempt outcome.
func CountLogin(outcome string) { loginAttempts.WithLabelValues(outcome).Inc() }

// CountDenial records an authorization denial for the given role.
func CountDenial(role string) { policyDenials.WithLabelValues(role).Inc() }

// SetActiveSessions updates the active-session gauge.
func SetActiveSessions(n int) { sessionsActive.Set(float64(n)) }

// CountAuditEvent records one recorded audit event.
func CountAuditEvent(eventType string) { auditEvents.WithLabelValues(eventType).Inc() }

// CountAuditDrop records one lost audit event.
func CountAuditDrop() { auditDropped.Inc() }

// CountAlert records one emitted security alert.
func CountAlert(flag string) { securityAlerts.WithLabelValues(flag).Inc() }

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// Instrument wraps an http.Handler with request counting and latency tracking.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		path := CanonicalPath(r.URL.Path)
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric labels stay
// low-cardinality: /v1/principals/abc becomes /v1/principals/:id and
// /v1/entities/customer/abc becomes /v1/entities/customer/:id.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 4 && parts[1] == "v1" && parts[2] == "principals":
		parts[3] = ":id"
	case len(parts) == 5 && parts[1] == "v1" && parts[2] == "entities":
		parts[4] = ":id"
	}
	return strings.Join(parts, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
