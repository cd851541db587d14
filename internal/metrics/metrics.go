// Package metrics provides the Prometheus metrics for the diagnosis service.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prediction statuses.
const (
	StatusSuccess          = "success"
	StatusModelUnavailable = "model_unavailable"
	StatusInferenceFailure = "inference_failure"
	StatusUnknownDisease   = "unknown_disease"
	StatusError            = "error"
)

// Metrics holds the service collectors and the registry they belong to.
type Metrics struct {
	PredictionTotal    *prometheus.CounterVec
	PredictionDuration prometheus.Histogram
	DiagnosisTotal     *prometheus.CounterVec
	ModelLoaded        prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the metrics on a fresh registry that also carries the Go
// runtime and process collectors.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		PredictionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantdx_predictions_total",
				Help: "Total number of classification requests by outcome.",
			},
			[]string{"status"},
		),
		PredictionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "plantdx_prediction_duration_seconds",
				Help:    "Time taken to decode, preprocess and classify one image.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
			},
		),
		DiagnosisTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantdx_diagnoses_total",
				Help: "Total number of diagnoses partitioned by label and severity.",
			},
			[]string{"label", "severity"},
		),
		ModelLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plantdx_model_loaded",
				Help: "1 when a classifier model is loaded, 0 otherwise.",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		m.PredictionTotal,
		m.PredictionDuration,
		m.DiagnosisTotal,
		m.ModelLoaded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SetModelLoaded(loaded bool) {
	if loaded {
		m.ModelLoaded.Set(1)
		return
	}
	m.ModelLoaded.Set(0)
}

// ObservePrediction records one classification attempt.
func (m *Metrics) ObservePrediction(status string, elapsed time.Duration) {
	m.PredictionTotal.WithLabelValues(status).Inc()
	m.PredictionDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveDiagnosis(label, severity string) {
	m.DiagnosisTotal.WithLabelValues(label, severity).Inc()
}
