package regioncache

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/buildbarn/bb-region-cache/pkg/device"
	"github.com/buildbarn/bb-region-cache/pkg/jobscheduler"
	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/prometheus/client_golang/prometheus"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	regionManagerPrometheusMetrics sync.Once

	regionManagerReclaims = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "region_cache",
			Name:      "reclaims_total",
			Help:      "Number of regions that were reclaimed and returned to the pool of clean regions.",
		})
	regionManagerReclaimDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "buildbarn",
			Subsystem: "region_cache",
			Name:      "reclaim_duration_seconds",
			Help:      "Amount of time between selecting a region for reclamation and returning it to the pool of clean regions, in seconds.",
			Buckets:   util.DecimalExponentialBuckets(-6, 7, 2),
		})
	regionManagerEvictedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "region_cache",
			Name:      "evicted_bytes_total",
			Help:      "Number of bytes that the eviction callback reported to be invalidated.",
		})
	regionManagerFlushAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "region_cache",
			Name:      "flush_attempts_total",
			Help:      "Number of attempts to write a region's buffer to the device.",
		},
		[]string{"result"})
	regionManagerFlushAttemptsSuccess = regionManagerFlushAttempts.WithLabelValues("Success")
	regionManagerFlushAttemptsFailure = regionManagerFlushAttempts.WithLabelValues("Failure")
	regionManagerFlushesAbandoned     = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "buildbarn",
			Subsystem: "region_cache",
			Name:      "flushes_abandoned_total",
			Help:      "Number of times a region's buffered data was lost, because all attempts to flush it failed.",
		})
)

const (
	reclaimJobName = "Reclaim"
	flushJobName   = "Flush"
)

// RegionManagerConfiguration contains the parameters that control how
// a device is partitioned into regions and how regions are recycled.
type RegionManagerConfiguration struct {
	NumRegions      uint32
	RegionSizeBytes uint32
	// Offset on the device at which the first region starts.
	BaseOffsetBytes uint64
	// Number of clean regions to keep available to writers.
	// Reclamation is scheduled to maintain this number.
	NumCleanRegions uint32
	// Maximum number of regions that may have an in-memory buffer
	// attached at the same time.
	NumInMemBuffers uint32
	// Number of reclamations to schedule upon construction.
	InitialReclaims uint32
	// Maximum number of device writes attempted per flush.
	FlushRetryLimit uint32
}

// RegionManagerStatistics is a snapshot of the state of a
// RegionManager.
type RegionManagerStatistics struct {
	NumRegions           uint32
	NumCleanRegions      int
	NumReclaimsScheduled uint32
	NumTrackedRegions    int
	NumBuffersAllocated  uint32
	NumBuffersAvailable  int
}

// RegionManager owns the regions into which a device is partitioned.
// It hands out clean regions to writers, routes reads and writes to
// either a region's in-memory buffer or the device, and recycles
// regions in the background by reclaiming them.
type RegionManager struct {
	device          device.Device
	scheduler       jobscheduler.JobScheduler
	evictCallback   RegionEvictCallback
	cleanupCallback RegionCleanupCallback
	clock           clock.Clock
	errorLogger     util.ErrorLogger

	regionSizeBytes uint32
	baseOffsetBytes uint64
	numCleanRegions uint32
	numInMemBuffers uint32
	flushRetryLimit uint32
	regions         []*Region

	policyLock sync.Mutex
	policy     EvictionPolicy

	cleanRegionsLock     sync.Mutex
	cleanRegions         []RegionID
	numReclaimsScheduled uint32

	bufferPoolLock      sync.Mutex
	bufferPool          []*Buffer
	numBuffersAllocated uint32
}

// NewRegionManager creates a RegionManager. Upon construction, the
// eviction policy is reset to track all regions, meaning that clean
// regions are obtained by reclaiming them. The device is not owned by
// the RegionManager.
//
// Regions obtained through GetCleanRegion() are only tracked by the
// eviction policy after they have been flushed. Callers must therefore
// flush every region they obtain, as regions that are never flushed
// are never reclaimed.
func NewRegionManager(dev device.Device, scheduler jobscheduler.JobScheduler, policy EvictionPolicy, evictCallback RegionEvictCallback, cleanupCallback RegionCleanupCallback, clock clock.Clock, errorLogger util.ErrorLogger, configuration *RegionManagerConfiguration) (*RegionManager, error) {
	if configuration.NumRegions == 0 || configuration.RegionSizeBytes == 0 {
		return nil, status.Error(codes.InvalidArgument, "Region manager requires at least one region of non-zero size")
	}
	if configuration.NumInMemBuffers == 0 {
		return nil, status.Error(codes.InvalidArgument, "Region manager requires at least one in-memory buffer")
	}
	if configuration.FlushRetryLimit == 0 {
		return nil, status.Error(codes.InvalidArgument, "Flush retry limit must be at least one")
	}
	if configuration.NumCleanRegions >= configuration.NumRegions {
		return nil, status.Errorf(codes.InvalidArgument, "Number of clean regions (%d) must be smaller than the number of regions (%d)", configuration.NumCleanRegions, configuration.NumRegions)
	}
	if requiredSizeBytes := configuration.BaseOffsetBytes + uint64(configuration.NumRegions)*uint64(configuration.RegionSizeBytes); requiredSizeBytes > dev.GetSizeBytes() {
		return nil, status.Errorf(codes.InvalidArgument, "Device size of %d bytes is too small to hold %d regions of %d bytes at base offset %d", dev.GetSizeBytes(), configuration.NumRegions, configuration.RegionSizeBytes, configuration.BaseOffsetBytes)
	}

	regionManagerPrometheusMetrics.Do(func() {
		prometheus.MustRegister(regionManagerReclaims)
		prometheus.MustRegister(regionManagerReclaimDurationSeconds)
		prometheus.MustRegister(regionManagerEvictedBytes)
		prometheus.MustRegister(regionManagerFlushAttempts)
		prometheus.MustRegister(regionManagerFlushesAbandoned)
	})

	rm := &RegionManager{
		device:          dev,
		scheduler:       scheduler,
		evictCallback:   evictCallback,
		cleanupCallback: cleanupCallback,
		clock:           clock,
		errorLogger:     errorLogger,

		regionSizeBytes: configuration.RegionSizeBytes,
		baseOffsetBytes: configuration.BaseOffsetBytes,
		numCleanRegions: max(configuration.NumCleanRegions, 1),
		numInMemBuffers: configuration.NumInMemBuffers,
		flushRetryLimit: configuration.FlushRetryLimit,
		regions:         make([]*Region, 0, configuration.NumRegions),

		policy: policy,
	}
	for i := uint32(0); i < configuration.NumRegions; i++ {
		rm.regions = append(rm.regions, newRegion(RegionID(i), configuration.RegionSizeBytes, rm.releaseBuffer))
	}
	rm.ResetEvictionPolicy()

	rm.cleanRegionsLock.Lock()
	rm.numReclaimsScheduled += configuration.InitialReclaims
	rm.cleanRegionsLock.Unlock()
	for i := uint32(0); i < configuration.InitialReclaims; i++ {
		rm.scheduler.EnqueueJob(rm.newReclaimJob(), reclaimJobName)
	}
	return rm, nil
}

// ResetEvictionPolicy discards the state of the eviction policy and
// tracks all regions in index order. Regions in the pool of clean
// regions are discarded, as they are obtained by reclaiming them once
// more. It must not be called while regions are in use.
func (rm *RegionManager) ResetEvictionPolicy() {
	for _, r := range rm.regions {
		if !r.isIdle() {
			panic(fmt.Sprintf("Attempted to reset the eviction policy while %s is in use", r.GetID()))
		}
	}

	rm.cleanRegionsLock.Lock()
	rm.cleanRegions = rm.cleanRegions[:0]
	rm.cleanRegionsLock.Unlock()

	rm.policyLock.Lock()
	defer rm.policyLock.Unlock()
	rm.policy.Reset()
	for _, r := range rm.regions {
		rm.policy.Track(r.GetID())
	}
}

// GetRegion returns the region with a given identifier.
func (rm *RegionManager) GetRegion(id RegionID) *Region {
	return rm.regions[id.Index()]
}

// GetNumRegions returns the number of regions into which the device
// is partitioned.
func (rm *RegionManager) GetNumRegions() uint32 {
	return uint32(len(rm.regions))
}

// GetRegionSizeBytes returns the size of every region.
func (rm *RegionManager) GetRegionSizeBytes() uint32 {
	return rm.regionSizeBytes
}

// ToAbsolute converts a region relative address to an offset on the
// device.
func (rm *RegionManager) ToAbsolute(address RelAddress) uint64 {
	if address.Offset >= rm.regionSizeBytes {
		panic(fmt.Sprintf("Offset %d exceeds region size of %d bytes", address.Offset, rm.regionSizeBytes))
	}
	return rm.baseOffsetBytes + uint64(address.RegionID.Index())*uint64(rm.regionSizeBytes) + uint64(address.Offset)
}

// ToRelative converts an offset on the device to a region relative
// address.
func (rm *RegionManager) ToRelative(offset uint64) RelAddress {
	if offset < rm.baseOffsetBytes {
		panic(fmt.Sprintf("Offset %d lies before the first region at offset %d", offset, rm.baseOffsetBytes))
	}
	offset -= rm.baseOffsetBytes
	return RelAddress{
		RegionID: RegionID(offset / uint64(rm.regionSizeBytes)),
		Offset:   uint32(offset % uint64(rm.regionSizeBytes)),
	}
}

// GetStatistics returns a snapshot of the state of the RegionManager.
func (rm *RegionManager) GetStatistics() RegionManagerStatistics {
	s := RegionManagerStatistics{NumRegions: uint32(len(rm.regions))}

	rm.cleanRegionsLock.Lock()
	s.NumCleanRegions = len(rm.cleanRegions)
	s.NumReclaimsScheduled = rm.numReclaimsScheduled
	rm.cleanRegionsLock.Unlock()

	rm.policyLock.Lock()
	s.NumTrackedRegions = rm.policy.Len()
	rm.policyLock.Unlock()

	rm.bufferPoolLock.Lock()
	s.NumBuffersAllocated = rm.numBuffersAllocated
	s.NumBuffersAvailable = len(rm.bufferPool)
	rm.bufferPoolLock.Unlock()
	return s
}

// acquireBuffer obtains a region-sized buffer from the pool, or
// allocates one if fewer than numInMemBuffers buffers exist.
func (rm *RegionManager) acquireBuffer() (*Buffer, bool) {
	rm.bufferPoolLock.Lock()
	defer rm.bufferPoolLock.Unlock()
	if n := len(rm.bufferPool); n > 0 {
		buffer := rm.bufferPool[n-1]
		rm.bufferPool[n-1] = nil
		rm.bufferPool = rm.bufferPool[:n-1]
		clear(buffer.Data())
		return buffer, true
	}
	if rm.numBuffersAllocated < rm.numInMemBuffers {
		rm.numBuffersAllocated++
		return NewBuffer(int(rm.regionSizeBytes)), true
	}
	return nil, false
}

// releaseBuffer returns a buffer to the pool.
func (rm *RegionManager) releaseBuffer(buffer *Buffer) {
	if buffer == nil {
		return
	}
	rm.bufferPoolLock.Lock()
	rm.bufferPool = append(rm.bufferPool, buffer)
	rm.bufferPoolLock.Unlock()
}

// scheduleReclaimsLocked schedules reclamations until the number of
// clean regions plus the number of reclamations in flight reaches the
// target. It returns the number of jobs that need to be enqueued,
// which must be done after dropping cleanRegionsLock.
func (rm *RegionManager) scheduleReclaimsLocked() uint32 {
	var n uint32
	for uint32(len(rm.cleanRegions))+rm.numReclaimsScheduled < rm.numCleanRegions {
		rm.numReclaimsScheduled++
		n++
	}
	return n
}

func (rm *RegionManager) enqueueReclaims(n uint32) {
	for i := uint32(0); i < n; i++ {
		rm.scheduler.EnqueueJob(rm.newReclaimJob(), reclaimJobName)
	}
}

// StartReclaim schedules reclamation if the number of clean regions
// plus the number of reclamations in flight is below the target.
// Concurrent calls are coalesced.
func (rm *RegionManager) StartReclaim() {
	rm.cleanRegionsLock.Lock()
	n := rm.scheduleReclaimsLocked()
	rm.cleanRegionsLock.Unlock()
	rm.enqueueReclaims(n)
}

// abandonReclaim is called by a reclamation job that found no region
// to reclaim.
func (rm *RegionManager) abandonReclaim() {
	rm.cleanRegionsLock.Lock()
	rm.numReclaimsScheduled--
	rm.cleanRegionsLock.Unlock()
}

// GetCleanRegion obtains a clean region and attaches an in-memory
// buffer to it. If no clean region or buffer is available,
// OpenStatusRetry is returned. This function does not block, but does
// schedule reclamation to replenish the pool of clean regions.
//
// The region is owned by the caller until it is flushed through
// FlushBuffer() or DoFlush().
func (rm *RegionManager) GetCleanRegion() (RegionID, OpenStatus) {
	rm.cleanRegionsLock.Lock()
	n := len(rm.cleanRegions)
	if n == 0 {
		reclaims := rm.scheduleReclaimsLocked()
		rm.cleanRegionsLock.Unlock()
		rm.enqueueReclaims(reclaims)
		return 0, OpenStatusRetry
	}
	id := rm.cleanRegions[n-1]
	rm.cleanRegions = rm.cleanRegions[:n-1]
	rm.cleanRegionsLock.Unlock()

	buffer, ok := rm.acquireBuffer()
	if !ok {
		rm.cleanRegionsLock.Lock()
		rm.cleanRegions = append(rm.cleanRegions, id)
		rm.cleanRegionsLock.Unlock()
		return 0, OpenStatusRetry
	}
	rm.regions[id.Index()].attachBuffer(buffer)

	rm.StartReclaim()
	return id, OpenStatusReady
}

// returnCleanRegion makes a reset region available to writers.
func (rm *RegionManager) returnCleanRegion(id RegionID, fromReclaim bool) {
	rm.cleanRegionsLock.Lock()
	rm.cleanRegions = append(rm.cleanRegions, id)
	if fromReclaim {
		rm.numReclaimsScheduled--
	}
	rm.cleanRegionsLock.Unlock()
}

// Touch records that a region was accessed, which affects the order in
// which regions are reclaimed by recency based eviction policies.
func (rm *RegionManager) Touch(id RegionID) {
	rm.policyLock.Lock()
	rm.policy.Touch(id)
	rm.policyLock.Unlock()
}

// Evict removes the next victim from the eviction policy and returns
// it, without reclaiming it.
func (rm *RegionManager) Evict() RegionID {
	rm.policyLock.Lock()
	defer rm.policyLock.Unlock()
	return rm.policy.Evict()
}

// OpenForRead grants read access to a region.
func (rm *RegionManager) OpenForRead(id RegionID) *RegionDescriptor {
	return rm.regions[id.Index()].OpenForRead()
}

// Close releases access to a region that was granted by
// Region.OpenAndAllocate() or OpenForRead().
func (rm *RegionManager) Close(desc *RegionDescriptor) {
	rm.regions[desc.GetRegionID().Index()].Close(desc)
}

// Write stores data in the in-memory buffer of a region at a location
// that was previously allocated through Region.OpenAndAllocate(). No
// device I/O takes place.
func (rm *RegionManager) Write(address RelAddress, buffer *Buffer) error {
	if err := rm.regions[address.RegionID.Index()].writeToBuffer(address.Offset, buffer.Data()); err != nil {
		return util.StatusWrapf(err, "Failed to write to %s", address.RegionID)
	}
	return nil
}

// Read returns a copy of a range of a region. Depending on how the
// descriptor was opened, data is read from the region's in-memory
// buffer or from the device.
func (rm *RegionManager) Read(desc *RegionDescriptor, address RelAddress, sizeBytes uint32) (*Buffer, error) {
	if !desc.IsReady() || desc.GetMode() != OpenModeRead || desc.GetRegionID() != address.RegionID {
		panic(fmt.Sprintf("Attempted to read from %s through a descriptor that does not permit it", address.RegionID))
	}
	if end := uint64(address.Offset) + uint64(sizeBytes); end > uint64(rm.regionSizeBytes) {
		return nil, status.Errorf(codes.InvalidArgument, "Read of %d bytes at offset %d exceeds region size of %d bytes", sizeBytes, address.Offset, rm.regionSizeBytes)
	}
	if !desc.IsPhysReadMode() {
		return rm.regions[address.RegionID.Index()].ReadFromBuffer(desc, address.Offset, sizeBytes)
	}
	buffer := NewBuffer(int(sizeBytes))
	if err := rm.device.Read(rm.ToAbsolute(address), buffer.Data()); err != nil {
		return nil, util.StatusWrapf(err, "Failed to read from %s", address.RegionID)
	}
	return buffer, nil
}

// writeBufferToDevice performs a single attempt at writing a region's
// buffer to the device.
func (rm *RegionManager) writeBufferToDevice(region *Region) error {
	buffer := region.getFlushBuffer()
	err := rm.device.Write(rm.ToAbsolute(RelAddress{RegionID: region.GetID()}), buffer.Data())
	if err != nil {
		regionManagerFlushAttemptsFailure.Inc()
		return err
	}
	regionManagerFlushAttemptsSuccess.Inc()
	return nil
}

// FlushBuffer synchronously writes a region's buffer to the device,
// retrying up to the configured limit. FlushFailed is only returned if
// all attempts failed, meaning the region's data has been discarded.
func (rm *RegionManager) FlushBuffer(id RegionID) FlushResult {
	region := rm.regions[id.Index()]
	region.startFlush()
	job, result := rm.newFlushJob(region)
	for job() == jobscheduler.JobReschedule {
		runtime.Gosched()
	}
	return *result
}

// DoFlush writes a region's buffer to the device. The region must have
// been obtained through GetCleanRegion() and must not have a writer
// open. In synchronous mode, this function only returns after the
// flush has completed. In asynchronous mode, flushing is performed by
// a job, where every failed attempt causes the job to be rescheduled.
//
// If all attempts fail, the region's data is considered lost. The
// cleanup callback is invoked, and once all in-memory readers have
// closed, the region is returned to the pool of clean regions.
func (rm *RegionManager) DoFlush(id RegionID, async bool) {
	if !async {
		rm.FlushBuffer(id)
		return
	}
	region := rm.regions[id.Index()]
	region.startFlush()
	job, _ := rm.newFlushJob(region)
	rm.scheduler.EnqueueJob(job, flushJobName)
}
