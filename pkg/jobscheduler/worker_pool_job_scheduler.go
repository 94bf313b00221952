package jobscheduler

import (
	"context"
	"runtime"
	"sync"

	"github.com/buildbarn/bb-storage/pkg/program"
)

type workerPoolJobScheduler struct {
	lock   sync.Mutex
	queue  []queuedJob
	wakeup chan struct{}
}

// NewWorkerPoolJobScheduler creates a JobScheduler that runs jobs on a
// fixed number of goroutines. The goroutines are launched as part of
// the provided program.Group, meaning that they terminate when the
// group is shut down. Jobs that remain queued at that point are
// discarded.
func NewWorkerPoolJobScheduler(group program.Group, concurrency int) JobScheduler {
	if concurrency < 1 {
		panic("Worker pool must have at least one worker")
	}
	js := &workerPoolJobScheduler{
		wakeup: make(chan struct{}, concurrency),
	}
	for i := 0; i < concurrency; i++ {
		group.Go(js.runWorker)
	}
	return js
}

func (js *workerPoolJobScheduler) EnqueueJob(job Job, name string) {
	js.lock.Lock()
	js.queue = append(js.queue, queuedJob{job: job, name: name})
	js.lock.Unlock()

	select {
	case js.wakeup <- struct{}{}:
	default:
		// All workers are busy or already about to wake up.
	}
}

func (js *workerPoolJobScheduler) dequeue() (queuedJob, bool) {
	js.lock.Lock()
	defer js.lock.Unlock()
	if len(js.queue) == 0 {
		return queuedJob{}, false
	}
	j := js.queue[0]
	js.queue[0] = queuedJob{}
	js.queue = js.queue[1:]
	return j, true
}

func (js *workerPoolJobScheduler) runWorker(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
	for {
		j, ok := js.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-js.wakeup:
			}
			continue
		}
		if j.job() == JobReschedule {
			// Give other goroutines (e.g., readers that are
			// being waited on) the opportunity to make progress
			// before the job is picked up again.
			runtime.Gosched()
			js.EnqueueJob(j.job, j.name)
		}
	}
}
