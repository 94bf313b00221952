package regioncache_test

import (
	"testing"

	"github.com/buildbarn/bb-region-cache/pkg/regioncache"
	pb "github.com/buildbarn/bb-storage/pkg/proto/configuration/eviction"
	"github.com/stretchr/testify/require"
)

func evictAll(p regioncache.EvictionPolicy) []regioncache.RegionID {
	var ids []regioncache.RegionID
	for p.Len() > 0 {
		ids = append(ids, p.Evict())
	}
	return ids
}

func TestFIFOEvictionPolicy(t *testing.T) {
	t.Run("TrackOrder", func(t *testing.T) {
		p := regioncache.NewFIFOEvictionPolicy()
		for _, id := range []regioncache.RegionID{3, 0, 2, 1} {
			p.Track(id)
		}
		require.Equal(t, 4, p.Len())
		require.Equal(t, []regioncache.RegionID{3, 0, 2, 1}, evictAll(p))
	})

	t.Run("TouchIsIgnored", func(t *testing.T) {
		p := regioncache.NewFIFOEvictionPolicy()
		for id := regioncache.RegionID(0); id < 4; id++ {
			p.Track(id)
		}
		p.Touch(0)
		p.Touch(1)
		require.Equal(t, []regioncache.RegionID{0, 1, 2, 3}, evictAll(p))
	})
}

func TestLRUEvictionPolicy(t *testing.T) {
	t.Run("TouchMovesToBack", func(t *testing.T) {
		p := regioncache.NewLRUEvictionPolicy()
		for id := regioncache.RegionID(0); id < 4; id++ {
			p.Track(id)
		}
		p.Touch(0)
		p.Touch(1)
		require.Equal(t, []regioncache.RegionID{2, 3, 0, 1}, evictAll(p))
	})

	t.Run("TouchUntracked", func(t *testing.T) {
		p := regioncache.NewLRUEvictionPolicy()
		p.Touch(7)
		p.Track(1)
		p.Track(2)
		p.Touch(7)
		require.Equal(t, []regioncache.RegionID{1, 2}, evictAll(p))
	})

	t.Run("UntrackSkipsRegion", func(t *testing.T) {
		p := regioncache.NewLRUEvictionPolicy()
		for id := regioncache.RegionID(0); id < 4; id++ {
			p.Track(id)
		}
		require.True(t, p.Untrack(1))
		require.False(t, p.Untrack(1))
		require.Equal(t, 3, p.Len())

		// Touching an untracked region must not resurrect it.
		p.Touch(1)
		require.Equal(t, []regioncache.RegionID{0, 2, 3}, evictAll(p))
	})

	t.Run("RetrackAfterUntrack", func(t *testing.T) {
		// A region that is tracked again must be ordered based
		// on the time at which it was tracked most recently.
		p := regioncache.NewLRUEvictionPolicy()
		p.Track(0)
		p.Track(1)
		p.Track(2)
		require.True(t, p.Untrack(0))
		p.Track(0)
		require.Equal(t, []regioncache.RegionID{1, 2, 0}, evictAll(p))
	})

	t.Run("TrackTwice", func(t *testing.T) {
		p := regioncache.NewLRUEvictionPolicy()
		p.Track(0)
		require.Panics(t, func() { p.Track(0) })
	})

	t.Run("EvictEmpty", func(t *testing.T) {
		p := regioncache.NewLRUEvictionPolicy()
		require.Panics(t, func() { p.Evict() })

		p.Track(0)
		p.Untrack(0)
		require.Panics(t, func() { p.Evict() })
	})

	t.Run("Reset", func(t *testing.T) {
		p := regioncache.NewLRUEvictionPolicy()
		p.Track(0)
		p.Track(1)
		p.Reset()
		require.Equal(t, 0, p.Len())
		p.Track(1)
		p.Track(0)
		require.Equal(t, []regioncache.RegionID{1, 0}, evictAll(p))
	})
}

func TestNewEvictionPolicyFromConfiguration(t *testing.T) {
	t.Run("FIFO", func(t *testing.T) {
		p, err := regioncache.NewEvictionPolicyFromConfiguration(pb.CacheReplacementPolicy_FIRST_IN_FIRST_OUT, "TestFIFO")
		require.NoError(t, err)
		p.Track(0)
		p.Track(1)
		p.Touch(0)
		require.Equal(t, []regioncache.RegionID{0, 1}, evictAll(p))
	})

	t.Run("LRU", func(t *testing.T) {
		p, err := regioncache.NewEvictionPolicyFromConfiguration(pb.CacheReplacementPolicy_LEAST_RECENTLY_USED, "TestLRU")
		require.NoError(t, err)
		p.Track(0)
		p.Track(1)
		p.Touch(0)
		require.Equal(t, []regioncache.RegionID{1, 0}, evictAll(p))
	})

	t.Run("RandomReplacement", func(t *testing.T) {
		p, err := regioncache.NewEvictionPolicyFromConfiguration(pb.CacheReplacementPolicy_RANDOM_REPLACEMENT, "TestRR")
		require.NoError(t, err)
		for id := regioncache.RegionID(0); id < 8; id++ {
			p.Track(id)
		}
		require.ElementsMatch(t, []regioncache.RegionID{0, 1, 2, 3, 4, 5, 6, 7}, evictAll(p))
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := regioncache.NewEvictionPolicyFromConfiguration(pb.CacheReplacementPolicy(1234), "TestInvalid")
		require.Error(t, err)
	})
}
