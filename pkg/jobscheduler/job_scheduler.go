package jobscheduler

// JobExitCode is returned by a Job to indicate whether it has completed
// or needs to be invoked again at a later point in time.
type JobExitCode int

const (
	// JobDone indicates that the job has completed and may be
	// discarded.
	JobDone JobExitCode = iota
	// JobReschedule indicates that the job could not make full
	// progress (e.g., because it is waiting for readers to drain).
	// The job is placed at the back of the queue, so that other
	// jobs get a chance to run first.
	JobReschedule
)

func (c JobExitCode) String() string {
	switch c {
	case JobDone:
		return "Done"
	case JobReschedule:
		return "Reschedule"
	default:
		return "Unknown"
	}
}

// Job is a resumable unit of work. Jobs must not block indefinitely.
// Instead of waiting for a condition to become true, they should
// return JobReschedule.
type Job func() JobExitCode

// JobScheduler accepts jobs and runs them to completion. Jobs that
// return JobReschedule are invoked again, in order of submission
// relative to other rescheduled jobs.
type JobScheduler interface {
	EnqueueJob(job Job, name string)
}
