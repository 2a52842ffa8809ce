package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry           *prometheus.Registry
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	variationsTotal    *prometheus.CounterVec
	exportedFilesTotal prometheus.Counter
	exportedBytesTotal prometheus.Counter
	archivedFilesTotal prometheus.Counter
	sweptFilesTotal    *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbsmith_worker_requests_total",
			Help: "Total generation requests processed, by final status.",
		}, []string{"status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "thumbsmith_worker_request_duration_seconds",
			Help:    "End-to-end request processing time in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"status"}),
		variationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbsmith_worker_variations_total",
			Help: "Total variation attempts, by outcome.",
		}, []string{"outcome"}),
		exportedFilesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbsmith_worker_exported_files_total",
			Help: "Total export files written to the output directory.",
		}),
		exportedBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbsmith_worker_exported_bytes_total",
			Help: "Total bytes written across all export files.",
		}),
		archivedFilesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "thumbsmith_worker_archived_files_total",
			Help: "Total export files mirrored to object storage.",
		}),
		sweptFilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thumbsmith_worker_swept_files_total",
			Help: "Total files removed by the retention sweeper, by directory role.",
		}, []string{"dir"}),
	}
	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.variationsTotal,
		m.exportedFilesTotal,
		m.exportedBytesTotal,
		m.archivedFilesTotal,
		m.sweptFilesTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
