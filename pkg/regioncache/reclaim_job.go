package regioncache

import (
	"time"

	"github.com/buildbarn/bb-region-cache/pkg/jobscheduler"
	"github.com/buildbarn/bb-storage/pkg/util"
)

// newReclaimJob creates a job that picks a victim from the eviction
// policy and turns it into a clean region. The eviction policy only
// tracks regions that have been flushed, so the victim's data resides
// on the device. The job progresses through the following steps,
// rescheduling itself whenever it cannot make progress:
//
//  1. Evict a region from the eviction policy. If no regions are
//     tracked, the job terminates. Flushing a region schedules a new
//     one.
//  2. Block new access and wait for readers to close.
//  3. Invoke the eviction callback.
//  4. Invoke the cleanup callback.
//  5. Reset the region and add it to the pool of clean regions.
func (rm *RegionManager) newReclaimJob() jobscheduler.Job {
	var region *Region
	var timeStart time.Time
	return func() jobscheduler.JobExitCode {
		if region == nil {
			rm.policyLock.Lock()
			if rm.policy.Len() == 0 {
				rm.policyLock.Unlock()
				rm.abandonReclaim()
				return jobscheduler.JobDone
			}
			id := rm.policy.Evict()
			rm.policyLock.Unlock()
			region = rm.regions[id.Index()]
			timeStart = rm.clock.Now()
		}
		id := region.GetID()

		if !region.readyForReclaim() {
			return jobscheduler.JobReschedule
		}

		contents := rm.getRegionContents(region)
		regionManagerEvictedBytes.Add(float64(rm.evictCallback(id, contents)))
		rm.cleanupCallback(id, contents)

		rm.releaseBuffer(region.detachBuffer())
		region.reset()
		rm.returnCleanRegion(id, true)

		regionManagerReclaims.Inc()
		regionManagerReclaimDurationSeconds.Observe(rm.clock.Now().Sub(timeStart).Seconds())
		return jobscheduler.JobDone
	}
}

// getRegionContents returns the data stored in a region that is being
// reclaimed. Data is taken from the region's buffer if one is still
// attached, or read from the device otherwise.
func (rm *RegionManager) getRegionContents(region *Region) BufferView {
	if view := region.getBufferView(); !view.IsNull() {
		return view
	}
	sizeBytes := region.GetLastEntryEndOffset()
	if sizeBytes == 0 {
		return BufferView{}
	}
	buffer := NewBuffer(int(sizeBytes))
	if err := rm.device.Read(rm.ToAbsolute(RelAddress{RegionID: region.GetID()}), buffer.Data()); err != nil {
		rm.errorLogger.Log(util.StatusWrapf(err, "Failed to read contents of %s for eviction", region.GetID()))
		return BufferView{}
	}
	return buffer.View()
}
