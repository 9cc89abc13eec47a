package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	queueEnqueued     *prometheus.CounterVec
	jobSamples        prometheus.Histogram
	described         *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	labels := []string{"method", "route", "status"}
	return &metrics{
		registry: registry,
		requestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprep_api_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, labels),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelprep_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, labels),
		rateLimitRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprep_api_rate_limit_rejections_total",
			Help: "Requests rejected by the token bucket, by route.",
		}, []string{"route"}),
		queueEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprep_queue_jobs_enqueued_total",
			Help: "Preprocess tasks enqueued, by queue.",
		}, []string{"queue"}),
		jobSamples: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelprep_api_job_samples",
			Help:    "Tensor samples requested per created job, summed over steps.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
		described: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprep_api_pipelines_described_total",
			Help: "Pipelines built by the describe endpoint, by mode.",
		}, []string{"mode"}),
	}
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		values := []string{r.Method, routeLabel(r.URL.Path), strconv.Itoa(recorder.status)}
		m.requestTotal.WithLabelValues(values...).Inc()
		m.requestDuration.WithLabelValues(values...).Observe(time.Since(start).Seconds())
	})
}

func modeLabel(train bool) string {
	if train {
		return "train"
	}
	return "eval"
}

// routeLabel maps a path to its route pattern so job IDs stay out of
// metric labels.
func routeLabel(path string) string {
	if rest, ok := strings.CutPrefix(path, "/v1/jobs/"); ok {
		if strings.HasSuffix(rest, "/start") {
			return "/v1/jobs/{id}/start"
		}
		return "/v1/jobs/{id}"
	}
	switch path {
	case "/v1/jobs", "/v1/pipelines/describe", "/healthz", "/metrics":
		return path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
