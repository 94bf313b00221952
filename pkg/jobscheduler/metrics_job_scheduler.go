package jobscheduler

import (
	"sync"

	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobSchedulerPrometheusMetrics sync.Once

	jobSchedulerJobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "job_scheduler",
			Name:      "jobs_enqueued_total",
			Help:      "Number of jobs that were submitted to the job scheduler.",
		},
		[]string{"name"})
	jobSchedulerJobInvocationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "buildbarn",
			Subsystem: "job_scheduler",
			Name:      "job_invocation_duration_seconds",
			Help:      "Amount of time spent running a single invocation of a job, in seconds.",
			Buckets:   util.DecimalExponentialBuckets(-6, 7, 2),
		},
		[]string{"name", "exit_code"})
)

type metricsJobScheduler struct {
	base  JobScheduler
	clock clock.Clock
}

// NewMetricsJobScheduler creates a decorator for JobScheduler that
// exposes Prometheus metrics on the number of jobs submitted and the
// duration of every invocation of a job. Job names are used as label
// values, so callers should use a small, fixed set of names.
func NewMetricsJobScheduler(base JobScheduler, clock clock.Clock) JobScheduler {
	jobSchedulerPrometheusMetrics.Do(func() {
		prometheus.MustRegister(jobSchedulerJobsEnqueued)
		prometheus.MustRegister(jobSchedulerJobInvocationDurationSeconds)
	})

	return &metricsJobScheduler{
		base:  base,
		clock: clock,
	}
}

func (js *metricsJobScheduler) EnqueueJob(job Job, name string) {
	jobSchedulerJobsEnqueued.WithLabelValues(name).Inc()
	done := jobSchedulerJobInvocationDurationSeconds.WithLabelValues(name, JobDone.String())
	reschedule := jobSchedulerJobInvocationDurationSeconds.WithLabelValues(name, JobReschedule.String())
	js.base.EnqueueJob(func() JobExitCode {
		timeStart := js.clock.Now()
		exitCode := job()
		duration := js.clock.Now().Sub(timeStart).Seconds()
		if exitCode == JobReschedule {
			reschedule.Observe(duration)
		} else {
			done.Observe(duration)
		}
		return exitCode
	}, name)
}
