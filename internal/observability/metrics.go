package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the evaluation service
type Metrics struct {
	registry *prometheus.Registry

	// EvaluationCounter counts evaluation requests by status (ok, invalid, error)
	EvaluationCounter *prometheus.CounterVec

	// EvaluationDuration tracks how long an evaluation takes
	// Buckets: 0.001s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s, 30s
	EvaluationDuration prometheus.Histogram

	// AlignedRecords tracks the number of aligned records per evaluation
	AlignedRecords prometheus.Histogram

	// OverallErrorRate holds the error rate of the latest evaluation by mode (wer, cer)
	OverallErrorRate *prometheus.GaugeVec
}

// NewMetrics registers the collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		EvaluationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inventar_eval_evaluations_total",
				Help: "Total number of evaluations by status",
			},
			[]string{"status"},
		),
		EvaluationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "inventar_eval_evaluation_duration_seconds",
				Help:    "Duration of evaluations in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
		),
		AlignedRecords: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "inventar_eval_aligned_records",
				Help:    "Number of aligned records per evaluation",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		OverallErrorRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "inventar_eval_overall_error_rate",
				Help: "Overall error rate of the latest evaluation",
			},
			[]string{"mode"},
		),
	}
}

// RecordEvaluation records a finished evaluation
func (m *Metrics) RecordEvaluation(status string, durationSeconds float64, alignedRecords int, wer, cer float64) {
	if m == nil {
		return
	}
	m.EvaluationCounter.WithLabelValues(status).Inc()
	m.EvaluationDuration.Observe(durationSeconds)
	if status != "ok" {
		return
	}
	m.AlignedRecords.Observe(float64(alignedRecords))
	m.OverallErrorRate.WithLabelValues("wer").Set(wer)
	m.OverallErrorRate.WithLabelValues("cer").Set(cer)
}

// RecordFailure counts an evaluation that did not produce a report
func (m *Metrics) RecordFailure(status string) {
	if m == nil {
		return
	}
	m.EvaluationCounter.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
