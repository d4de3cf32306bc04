package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "simsyn",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simsyn",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simsyn",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	simulationExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simsyn",
			Subsystem: "simulation",
			Name:      "executions_total",
			Help:      "Total number of simulation task executions.",
		},
		[]string{"status"},
	)

	simulationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "simsyn",
			Subsystem: "simulation",
			Name:      "execution_duration_seconds",
			Help:      "Duration of simulation task executions.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~20min
		},
		[]string{"status"},
	)

	chatGenerations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "simsyn",
			Subsystem: "chat",
			Name:      "generations_total",
			Help:      "Total number of LLM generation attempts.",
		},
		[]string{"provider", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		simulationExecutions,
		simulationDuration,
		chatGenerations,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordSimulationExecution records metrics for one executed task.
func RecordSimulationExecution(status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	simulationExecutions.WithLabelValues(status).Inc()
	simulationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordChatGeneration records one LLM generation attempt.
func RecordChatGeneration(provider string, success bool) {
	if provider == "" {
		provider = "unknown"
	}
	chatGenerations.WithLabelValues(provider, strconv.FormatBool(success)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource ids so metric cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "tasks" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/tasks"
	}
	if len(parts) == 2 {
		return "/tasks/:id"
	}
	return "/tasks/:id/" + parts[2]
}
