package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry           *prometheus.Registry
	jobsTotal          *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	activeJobs         prometheus.Gauge
	tensorsTotal       *prometheus.CounterVec
	samplesTotal       prometheus.Counter
	pixelsProcessed    prometheus.Counter
	tensorBytesTotal   prometheus.Counter
	computeTimeMSTotal prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprep_worker_jobs_total",
			Help: "Worker jobs by source type and final status.",
		}, []string{"source_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelprep_worker_job_duration_seconds",
			Help:    "Wall time of each worker job.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"source_type", "status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelprep_worker_active_jobs",
			Help: "Jobs currently holding a worker slot.",
		}),
		tensorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelprep_worker_tensors_total",
			Help: "NPY tensors emitted, by dtype.",
		}, []string{"dtype"}),
		samplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelprep_worker_samples_total",
			Help: "Pipeline samples run across all emitted tensors.",
		}),
		pixelsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelprep_usage_pixels_processed_total",
			Help: "Source pixels processed across successful jobs.",
		}),
		tensorBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelprep_usage_tensor_bytes_total",
			Help: "Encoded tensor bytes across successful jobs.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelprep_usage_compute_time_ms_total",
			Help: "Compute time in milliseconds across successful jobs.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.tensorsTotal,
		m.samplesTotal,
		m.pixelsProcessed,
		m.tensorBytesTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
