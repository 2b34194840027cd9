// Package metrics exposes Prometheus metrics for ingestion, training and scoring.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all service metrics on a private Prometheus registry
type Registry struct {
	reg *prometheus.Registry

	IngestedTransactions prometheus.Counter
	DroppedRows          *prometheus.CounterVec

	TrainingRuns     *prometheus.CounterVec
	TrainingDuration prometheus.Histogram
	ModelMetric      *prometheus.GaugeVec

	Scores          *prometheus.CounterVec
	ScoreDuration   prometheus.Histogram
	RiskProbability prometheus.Histogram
}

// NewRegistry creates the metric set plus Go runtime and process collectors
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		IngestedTransactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cashflow_ingested_transactions_total",
			Help: "Transactions appended to the ledger",
		}),
		DroppedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cashflow_ingest_dropped_rows_total",
			Help: "Ingested rows dropped during parsing",
		}, []string{"reason"}),

		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cashflow_training_runs_total",
			Help: "Training runs by outcome and model type",
		}, []string{"status", "model_type"}),
		TrainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cashflow_training_duration_seconds",
			Help:    "End-to-end training run duration",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ModelMetric: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cashflow_model_metric",
			Help: "Held-out metrics of the latest trained model",
		}, []string{"metric"}),

		Scores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cashflow_scores_total",
			Help: "Scoring requests by outcome and tier",
		}, []string{"status", "tier"}),
		ScoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cashflow_score_duration_seconds",
			Help:    "Per-business scoring duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		RiskProbability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cashflow_risk_probability",
			Help:    "Distribution of scored stress probabilities",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.IngestedTransactions,
		r.DroppedRows,
		r.TrainingRuns,
		r.TrainingDuration,
		r.ModelMetric,
		r.Scores,
		r.ScoreDuration,
		r.RiskProbability,
	)
	return r
}

// Handler serves the registry in the Prometheus text format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry, mainly for tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveTraining records one finished training run
func (r *Registry) ObserveTraining(status, modelType string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.TrainingRuns.WithLabelValues(status, modelType).Inc()
	r.TrainingDuration.Observe(elapsed.Seconds())
}

// SetModelMetric publishes a held-out metric; nil removes the series
func (r *Registry) SetModelMetric(name string, value *float64) {
	if r == nil {
		return
	}
	if value == nil {
		r.ModelMetric.DeleteLabelValues(name)
		return
	}
	r.ModelMetric.WithLabelValues(name).Set(*value)
}

// ObserveScore records one scored business; tier is empty on failure
func (r *Registry) ObserveScore(status, tier string, probability float64, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.Scores.WithLabelValues(status, tier).Inc()
	r.ScoreDuration.Observe(elapsed.Seconds())
	if tier != "" {
		r.RiskProbability.Observe(probability)
	}
}

// ObserveIngest records accepted and dropped rows
func (r *Registry) ObserveIngest(accepted int, dropped map[string]int) {
	if r == nil {
		return
	}
	r.IngestedTransactions.Add(float64(accepted))
	for reason, n := range dropped {
		if n > 0 {
			r.DroppedRows.WithLabelValues(reason).Add(float64(n))
		}
	}
}
