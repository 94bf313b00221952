package main

import (
	"sync"

	"github.com/buildbarn/bb-region-cache/pkg/regioncache"
	"github.com/buildbarn/bb-storage/pkg/random"
)

// indexEntry describes an object that was written into a region by the
// workload. The checksum is used by readers to detect corruption.
type indexEntry struct {
	address   regioncache.RelAddress
	sizeBytes uint32
	checksum  uint64
}

// entryIndex keeps track of all objects that are stored in the region
// cache. Entries are removed when the region that contains them is
// evicted, or when its data is lost due to flushing failing.
type entryIndex struct {
	lock           sync.Mutex
	regions        map[regioncache.RegionID][]indexEntry
	numEntries     int
	numLostRegions uint64
}

func newEntryIndex() *entryIndex {
	return &entryIndex{
		regions: map[regioncache.RegionID][]indexEntry{},
	}
}

func (ei *entryIndex) add(entry indexEntry) {
	ei.lock.Lock()
	ei.regions[entry.address.RegionID] = append(ei.regions[entry.address.RegionID], entry)
	ei.numEntries++
	ei.lock.Unlock()
}

// getRandom returns a randomly chosen entry within a region.
func (ei *entryIndex) getRandom(id regioncache.RegionID) (indexEntry, bool) {
	ei.lock.Lock()
	defer ei.lock.Unlock()
	entries := ei.regions[id]
	if len(entries) == 0 {
		return indexEntry{}, false
	}
	return entries[random.FastThreadSafeGenerator.IntN(len(entries))], true
}

// contains returns whether an entry is still part of the index. Readers
// call this after opening the region, as the region may have been
// recycled in the meantime.
func (ei *entryIndex) contains(entry indexEntry) bool {
	ei.lock.Lock()
	defer ei.lock.Unlock()
	for _, e := range ei.regions[entry.address.RegionID] {
		if e == entry {
			return true
		}
	}
	return false
}

func (ei *entryIndex) removeRegion(id regioncache.RegionID) uint64 {
	ei.lock.Lock()
	defer ei.lock.Unlock()
	var sizeBytes uint64
	for _, e := range ei.regions[id] {
		sizeBytes += uint64(e.sizeBytes)
	}
	ei.numEntries -= len(ei.regions[id])
	delete(ei.regions, id)
	return sizeBytes
}

// evictRegion can be used as a RegionEvictCallback.
func (ei *entryIndex) evictRegion(id regioncache.RegionID, data regioncache.BufferView) uint64 {
	return ei.removeRegion(id)
}

// cleanupRegion can be used as a RegionCleanupCallback. Regions whose
// data got lost are never passed to evictRegion() before being
// recycled, so entries need to be dropped here as well.
func (ei *entryIndex) cleanupRegion(id regioncache.RegionID, data regioncache.BufferView) {
	if ei.removeRegion(id) > 0 {
		ei.lock.Lock()
		ei.numLostRegions++
		ei.lock.Unlock()
	}
}

func (ei *entryIndex) getNumEntries() int {
	ei.lock.Lock()
	defer ei.lock.Unlock()
	return ei.numEntries
}

func (ei *entryIndex) getNumLostRegions() uint64 {
	ei.lock.Lock()
	defer ei.lock.Unlock()
	return ei.numLostRegions
}
