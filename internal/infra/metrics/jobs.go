package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsFinishedTotal, jobsInFlight) }

var (
	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_jobs_finished_total",
			Help: "Analysis jobs reaching a terminal status.",
		},
		[]string{"status"}, // 'completed', 'completed_with_errors', 'failed'
	)

	jobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "analysis_jobs_in_flight",
			Help: "Jobs currently being processed by this instance.",
		},
	)
)

func IncJobFinished(status string) {
	jobsFinishedTotal.WithLabelValues(norm(status)).Inc()
}

func JobStarted()  { jobsInFlight.Inc() }
func JobFinished() { jobsInFlight.Dec() }
