// Package metrics provides Prometheus instrumentation for graph
// compilation and valuation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallsCompiled counts stubbed calls registered into dependency graphs.
	CallsCompiled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quantdsl_calls_compiled_total",
		Help: "Total stubbed calls registered into dependency graphs",
	})

	// CallsEvaluated counts call results computed, partitioned by mode.
	CallsEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantdsl_calls_evaluated_total",
		Help: "Total call results computed",
	}, []string{"mode"})

	// CallEvaluationSeconds observes per-call evaluation latency.
	CallEvaluationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quantdsl_call_evaluation_seconds",
		Help:    "Per-call evaluation latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	})

	// ValuationsTotal counts completed contract valuations by outcome.
	ValuationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quantdsl_valuations_total",
		Help: "Total contract valuation runs",
	}, []string{"outcome"})
)
