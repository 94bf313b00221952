package main

import (
	"testing"

	"github.com/buildbarn/bb-region-cache/pkg/regioncache"
	"github.com/stretchr/testify/require"
)

func TestEntryIndex(t *testing.T) {
	index := newEntryIndex()
	entries := []indexEntry{
		{address: regioncache.RelAddress{RegionID: 3, Offset: 0}, sizeBytes: 100, checksum: 1},
		{address: regioncache.RelAddress{RegionID: 3, Offset: 100}, sizeBytes: 50, checksum: 2},
		{address: regioncache.RelAddress{RegionID: 5, Offset: 0}, sizeBytes: 10, checksum: 3},
	}
	for _, e := range entries {
		index.add(e)
	}
	require.Equal(t, 3, index.getNumEntries())

	t.Run("GetRandom", func(t *testing.T) {
		_, ok := index.getRandom(4)
		require.False(t, ok)

		for i := 0; i < 10; i++ {
			e, ok := index.getRandom(3)
			require.True(t, ok)
			require.Contains(t, entries[:2], e)
		}
		e, ok := index.getRandom(5)
		require.True(t, ok)
		require.Equal(t, entries[2], e)
	})

	t.Run("EvictRegion", func(t *testing.T) {
		require.Equal(t, uint64(150), index.evictRegion(3, regioncache.BufferView{}))
		require.False(t, index.contains(entries[0]))
		require.True(t, index.contains(entries[2]))
		require.Equal(t, 1, index.getNumEntries())
		require.Equal(t, uint64(0), index.getNumLostRegions())
	})

	t.Run("CleanupRegion", func(t *testing.T) {
		// Regions are only counted as lost if they still had
		// entries at the time of cleanup.
		index.cleanupRegion(3, regioncache.BufferView{})
		require.Equal(t, uint64(0), index.getNumLostRegions())
		index.cleanupRegion(5, regioncache.BufferView{})
		require.Equal(t, uint64(1), index.getNumLostRegions())
		require.Equal(t, 0, index.getNumEntries())
	})
}
