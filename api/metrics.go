package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the server's Prometheus collectors on a private registry
// so multiple servers can coexist in one process.
type metrics struct {
	registry         *prometheus.Registry
	requestsTotal    *prometheus.CounterVec
	generateDuration prometheus.Histogram
	sequencesTotal   prometheus.Counter
	modelLoadedGauge prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tgen_requests_total",
				Help: "API requests by handler and outcome",
			},
			[]string{"handler", "status"},
		),
		generateDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tgen_generate_duration_seconds",
				Help:    "Wall time of generation calls",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		sequencesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tgen_generated_sequences_total",
				Help: "Total sequences returned to clients",
			},
		),
		modelLoadedGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tgen_model_loaded",
				Help: "Whether a model is currently loaded",
			},
		),
	}

	m.registry.MustRegister(m.requestsTotal, m.generateDuration, m.sequencesTotal, m.modelLoadedGauge)
	return m
}
