package regioncache

import (
	"github.com/buildbarn/bb-region-cache/pkg/jobscheduler"
	"github.com/buildbarn/bb-storage/pkg/util"
)

// newFlushJob creates a job that writes a region's buffer to the
// device. Every invocation performs at most one device write.
//
// Once flushed, the region is sealed and starts being tracked by the
// eviction policy, making it eligible for reclamation. After
// flushRetryLimit failed writes, the region's data is considered lost:
// the cleanup callback is invoked, and once all readers have closed,
// the region is returned to the pool of clean regions without ever
// having been tracked.
func (rm *RegionManager) newFlushJob(region *Region) (jobscheduler.Job, *FlushResult) {
	id := region.GetID()
	result := FlushFailed
	var failedAttempts uint32
	dataLost := false
	return func() jobscheduler.JobExitCode {
		if !dataLost {
			err := rm.writeBufferToDevice(region)
			if err == nil {
				rm.releaseBuffer(region.markFlushed())
				rm.policyLock.Lock()
				rm.policy.Track(id)
				rm.policyLock.Unlock()
				rm.StartReclaim()

				result = FlushSuccess
				return jobscheduler.JobDone
			}
			failedAttempts++
			if failedAttempts < rm.flushRetryLimit {
				return jobscheduler.JobReschedule
			}

			rm.errorLogger.Log(util.StatusWrapf(err, "Discarding data of %s, as all %d attempts to flush it failed", id, failedAttempts))
			regionManagerFlushesAbandoned.Inc()
			dataLost = true
			rm.cleanupCallback(id, region.getBufferView())
		}

		// Readers that were opened before the failure still
		// depend on the buffer.
		buffer, ok := region.tryDetachBufferAfterFailure()
		if !ok {
			return jobscheduler.JobReschedule
		}
		rm.releaseBuffer(buffer)
		region.reset()
		rm.returnCleanRegion(id, false)
		return jobscheduler.JobDone
	}, &result
}
