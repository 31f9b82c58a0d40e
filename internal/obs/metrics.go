package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
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
)

// Audit and authorization metrics
var (
	auditRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_total",
			Help: "Audit record writes by action type and result.",
		},
		[]string{"action_type", "result"},
	)

	auditPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_purged_records_total",
		Help: "Audit records removed by retention purges.",
	})

	authDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_decisions_total",
			Help: "Authentication and authorization outcomes.",
		},
		[]string{"stage", "outcome"},
	)

	pipelineStatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_pipeline_final_state_total",
			Help: "Final state reached by privileged requests.",
		},
		[]string{"state"},
	)
)

var initOnce sync.Once

// Init registers all metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			auditRecordsTotal, auditPurgedTotal, authDecisionsTotal, pipelineStatesTotal,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RPS, latency and in-flight requests. It is meant to be
// installed as router middleware so the matched route pattern is available
// as the path label.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		path := RoutePattern(r)
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

// RoutePattern returns the matched chi route pattern, or "unmatched" so that
// unknown paths cannot blow up label cardinality.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// ObserveAuditWrite counts one audit write attempt.
func ObserveAuditWrite(actionType string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	auditRecordsTotal.WithLabelValues(actionType, result).Inc()
}

// ObservePurged adds n purged records.
func ObservePurged(n int64) {
	if n > 0 {
		auditPurgedTotal.Add(float64(n))
	}
}

// ObserveAuthDecision counts an authenticate/authorize outcome.
func ObserveAuthDecision(stage, outcome string) {
	authDecisionsTotal.WithLabelValues(stage, outcome).Inc()
}

// ObservePipelineState counts the terminal state of a privileged request.
func ObservePipelineState(state string) {
	pipelineStatesTotal.WithLabelValues(state).Inc()
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
