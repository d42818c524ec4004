package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(stageExecutionsTotal, stageLatencySeconds) }

var (
	stageExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_stage_executions_total",
			Help: "Stage executions by stage id and outcome.",
		},
		[]string{"stage", "outcome"}, // 'ok', 'fallback'
	)

	stageLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_stage_latency_seconds",
			Help:    "Wall-clock duration of one stage execution.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"stage"},
	)
)

func ObserveStage(stage string, outcome string, seconds float64) {
	stageExecutionsTotal.WithLabelValues(norm(stage), norm(outcome)).Inc()
	stageLatencySeconds.WithLabelValues(norm(stage)).Observe(seconds)
}
