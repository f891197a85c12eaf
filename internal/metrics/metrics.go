// internal/metrics/metrics.go
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every predict metric. It is separate from the default
// registry so the textfile export contains only run metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// StageSeconds is a histogram of per-stage latency
	StageSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "predict_stage_seconds",
			Help:    "Histogram of pipeline stage latency (seconds).",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"stage"},
	)

	// InferenceLatencySeconds is a histogram for inference-only latency
	InferenceLatencySeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "predict_inference_latency_seconds",
			Help:    "Histogram of model invocation latency (seconds) excluding bind and read-back.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// RunsTotal counts runs by outcome
	RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predict_runs_total",
			Help: "Total number of prediction runs by outcome.",
		},
		[]string{"outcome"},
	)

	// TopScore is the displayed score of the best prediction of the last run
	TopScore = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "predict_top_score",
			Help: "Displayed score of the highest ranked prediction.",
		},
	)

	// CacheLookups counts result cache lookups by result
	CacheLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predict_cache_lookups_total",
			Help: "Result cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)
)

// RecordStage records the latency of a pipeline stage
func RecordStage(stage string, seconds float64) {
	StageSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordInferenceLatency records the latency of an inference call
func RecordInferenceLatency(seconds float64) {
	InferenceLatencySeconds.Observe(seconds)
}

// RecordRun counts a finished run
func RecordRun(outcome string) {
	RunsTotal.WithLabelValues(outcome).Inc()
}

// SetTopScore sets the top score gauge
func SetTopScore(score float64) {
	TopScore.Set(score)
}

// RecordCacheLookup counts a cache lookup
func RecordCacheLookup(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
