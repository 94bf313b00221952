package jobscheduler

import (
	"sync"
)

type queuedJob struct {
	job  Job
	name string
}

// ManualJobScheduler is an implementation of JobScheduler that only
// queues jobs. Jobs are run by the caller through RunFirst(). This
// makes it possible to control precisely when reclamation and flushing
// takes place, which is useful for testing and for synchronous draining.
type ManualJobScheduler struct {
	lock  sync.Mutex
	queue []queuedJob
}

var _ JobScheduler = (*ManualJobScheduler)(nil)

// NewManualJobScheduler creates a ManualJobScheduler that has an empty
// queue.
func NewManualJobScheduler() *ManualJobScheduler {
	return &ManualJobScheduler{}
}

// EnqueueJob appends a job to the back of the queue.
func (js *ManualJobScheduler) EnqueueJob(job Job, name string) {
	js.lock.Lock()
	js.queue = append(js.queue, queuedJob{job: job, name: name})
	js.lock.Unlock()
}

// RunFirst removes the job at the front of the queue and invokes it.
// If the job requests to be rescheduled, it is placed at the back of
// the queue. The return value indicates whether a job was run.
//
// The lock is not held while the job runs, as jobs may enqueue other
// jobs.
func (js *ManualJobScheduler) RunFirst() bool {
	js.lock.Lock()
	if len(js.queue) == 0 {
		js.lock.Unlock()
		return false
	}
	j := js.queue[0]
	js.queue[0] = queuedJob{}
	js.queue = js.queue[1:]
	js.lock.Unlock()

	if j.job() == JobReschedule {
		js.EnqueueJob(j.job, j.name)
	}
	return true
}

// GetQueueSize returns the number of jobs that are currently queued.
func (js *ManualJobScheduler) GetQueueSize() int {
	js.lock.Lock()
	defer js.lock.Unlock()
	return len(js.queue)
}

// GetQueuedJobNames returns the names of the jobs that are currently
// queued, in the order in which they will be run.
func (js *ManualJobScheduler) GetQueuedJobNames() []string {
	js.lock.Lock()
	defer js.lock.Unlock()
	names := make([]string, 0, len(js.queue))
	for _, j := range js.queue {
		names = append(names, j.name)
	}
	return names
}

// RunUntilIdle runs jobs until the queue is empty. Jobs that keep on
// rescheduling themselves cause this function not to return.
func (js *ManualJobScheduler) RunUntilIdle() {
	for js.RunFirst() {
	}
}
