package regioncache_test

import (
	"bytes"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/buildbarn/bb-region-cache/pkg/device"
	"github.com/buildbarn/bb-region-cache/pkg/jobscheduler"
	"github.com/buildbarn/bb-region-cache/pkg/regioncache"
	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/buildbarn/bb-storage/pkg/program"
	"github.com/buildbarn/bb-storage/pkg/random"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type concurrentEntry struct {
	address regioncache.RelAddress
	data    []byte
}

// concurrentIndex keeps track of the entries stored in every region,
// and of the regions that are owned by a writer.
type concurrentIndex struct {
	lock       sync.Mutex
	entries    map[regioncache.RegionID][]*concurrentEntry
	owned      map[regioncache.RegionID]bool
	violations []string
}

func (ci *concurrentIndex) obtained(id regioncache.RegionID) {
	ci.lock.Lock()
	defer ci.lock.Unlock()
	if ci.owned[id] {
		ci.violations = append(ci.violations, id.String()+" was handed out while still owned by a writer")
	}
	if len(ci.entries[id]) > 0 {
		ci.violations = append(ci.violations, id.String()+" was handed out while still holding indexed entries")
	}
	ci.owned[id] = true
}

func (ci *concurrentIndex) released(id regioncache.RegionID) {
	ci.lock.Lock()
	ci.owned[id] = false
	ci.lock.Unlock()
}

func (ci *concurrentIndex) add(entry *concurrentEntry) {
	ci.lock.Lock()
	id := entry.address.RegionID
	ci.entries[id] = append(ci.entries[id], entry)
	ci.lock.Unlock()
}

func (ci *concurrentIndex) pick(id regioncache.RegionID, n int) *concurrentEntry {
	ci.lock.Lock()
	defer ci.lock.Unlock()
	entries := ci.entries[id]
	if len(entries) == 0 {
		return nil
	}
	return entries[n%len(entries)]
}

func (ci *concurrentIndex) contains(entry *concurrentEntry) bool {
	ci.lock.Lock()
	defer ci.lock.Unlock()
	for _, e := range ci.entries[entry.address.RegionID] {
		if e == entry {
			return true
		}
	}
	return false
}

func (ci *concurrentIndex) evict(id regioncache.RegionID, contents regioncache.BufferView) uint64 {
	ci.lock.Lock()
	defer ci.lock.Unlock()
	if ci.owned[id] {
		ci.violations = append(ci.violations, id.String()+" was reclaimed while still owned by a writer")
	}
	var evictedBytes uint64
	data := contents.Data()
	for _, e := range ci.entries[id] {
		end := int(e.address.Offset) + len(e.data)
		if end > len(data) || !bytes.Equal(data[e.address.Offset:end], e.data) {
			ci.violations = append(ci.violations, id.String()+" was evicted with contents that differ from what was written")
		}
		evictedBytes += uint64(len(e.data))
	}
	delete(ci.entries, id)
	return evictedBytes
}

func TestRegionManagerConcurrentWorkload(t *testing.T) {
	const (
		numRegions       = 8
		regionSize       = 4096
		entrySize        = 512
		numWriters       = 3
		numReaders       = 3
		regionsPerWriter = 20
	)

	index := &concurrentIndex{
		entries: map[regioncache.RegionID][]*concurrentEntry{},
		owned:   map[regioncache.RegionID]bool{},
	}
	var numReads atomic.Uint64

	require.NoError(t, program.RunLocal(context.Background(), func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
		rm, err := regioncache.NewRegionManager(
			device.NewInMemoryDevice(numRegions*regionSize),
			jobscheduler.NewWorkerPoolJobScheduler(dependenciesGroup, 2),
			regioncache.NewLRUEvictionPolicy(),
			index.evict,
			ignoreCleanup,
			clock.SystemClock,
			util.DefaultErrorLogger,
			&regioncache.RegionManagerConfiguration{
				NumRegions:      numRegions,
				RegionSizeBytes: regionSize,
				NumCleanRegions: 2,
				NumInMemBuffers: 4,
				InitialReclaims: 2,
				FlushRetryLimit: flushRetryLimit,
			})
		if err != nil {
			return err
		}

		var writersDone atomic.Bool
		var writers, readers errgroup.Group
		for w := 0; w < numWriters; w++ {
			writers.Go(func() error {
				for i := 0; i < regionsPerWriter; i++ {
					var id regioncache.RegionID
					for {
						var openStatus regioncache.OpenStatus
						if id, openStatus = rm.GetCleanRegion(); openStatus == regioncache.OpenStatusReady {
							break
						}
						runtime.Gosched()
					}
					index.obtained(id)

					region := rm.GetRegion(id)
					for {
						wdesc, address := region.OpenAndAllocate(entrySize)
						if wdesc.GetStatus() == regioncache.OpenStatusError {
							break
						}
						if !wdesc.IsReady() {
							return status.Errorf(codes.Internal, "Failed to allocate space in owned %s", id)
						}
						data := generatePayload(entrySize, byte(random.FastThreadSafeGenerator.IntN(256)))
						if err := rm.Write(address, regioncache.NewBufferFromBytes(data)); err != nil {
							return err
						}
						rm.Close(wdesc)
						index.add(&concurrentEntry{address: address, data: data})
					}

					index.released(id)
					if result := rm.FlushBuffer(id); result != regioncache.FlushSuccess {
						return status.Errorf(codes.Internal, "Flushing %s yielded %s", id, result)
					}
				}
				return nil
			})
		}
		for r := 0; r < numReaders; r++ {
			readers.Go(func() error {
				// Sealed regions that have not been reclaimed
				// remain readable after the writers are done.
				for !writersDone.Load() || numReads.Load() == 0 {
					id := regioncache.RegionID(random.FastThreadSafeGenerator.IntN(numRegions))
					entry := index.pick(id, random.FastThreadSafeGenerator.IntN(regionSize/entrySize))
					if entry == nil {
						runtime.Gosched()
						continue
					}
					rdesc := rm.OpenForRead(id)
					if !rdesc.IsReady() {
						continue
					}
					// The region may have been reclaimed between
					// picking the entry and opening the region.
					if index.contains(entry) {
						data, err := rm.Read(rdesc, entry.address, entrySize)
						if err != nil {
							rm.Close(rdesc)
							return err
						}
						if !bytes.Equal(entry.data, data.Data()) {
							rm.Close(rdesc)
							return status.Errorf(codes.Internal, "Read of %s at offset %d returned data that differs from what was written", id, entry.address.Offset)
						}
						rm.Touch(id)
						numReads.Add(1)
					}
					rm.Close(rdesc)
				}
				return nil
			})
		}

		writersErr := writers.Wait()
		writersDone.Store(true)
		readersErr := readers.Wait()
		if writersErr != nil {
			return writersErr
		}
		return readersErr
	}))

	require.Empty(t, index.violations)
	require.NotZero(t, numReads.Load())
}
