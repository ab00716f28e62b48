package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job metrics, labelled by job name.
var (
	jobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_cron_job_runs_total",
			Help: "Total number of cron job runs by job and status (success/failure)",
		},
		[]string{"job", "status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_cron_job_duration_seconds",
			Help:    "Duration of cron job execution in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"job"},
	)

	jobLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_cron_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful run per job",
		},
		[]string{"job"},
	)
)

func recordJob(job string, seconds float64, err error) {
	jobDuration.WithLabelValues(job).Observe(seconds)
	if err != nil {
		jobRunsTotal.WithLabelValues(job, "failure").Inc()
		return
	}
	jobRunsTotal.WithLabelValues(job, "success").Inc()
	jobLastSuccess.WithLabelValues(job).SetToCurrentTime()
}
