package regioncache

import (
	"fmt"

	"github.com/buildbarn/bb-storage/pkg/eviction"
	pb "github.com/buildbarn/bb-storage/pkg/proto/configuration/eviction"
	"github.com/buildbarn/bb-storage/pkg/util"
)

// EvictionPolicy keeps track of regions that are in use and decides
// which of them is reclaimed next. Implementations are not thread
// safe; RegionManager serializes access.
type EvictionPolicy interface {
	// Track starts tracking a region that transitions into use.
	// Tracking a region that is already tracked is a programming
	// error.
	Track(id RegionID)
	// Untrack stops tracking a region without evicting it. The
	// return value indicates whether the region was tracked.
	Untrack(id RegionID) bool
	// Touch records that a region was accessed. It is ignored for
	// regions that are not tracked.
	Touch(id RegionID)
	// Evict stops tracking the region that should be reclaimed
	// next and returns it. Calling Evict while no regions are
	// tracked is a programming error.
	Evict() RegionID
	// Len returns the number of tracked regions.
	Len() int
	// Reset stops tracking all regions.
	Reset()
}

// trackedRegion is the value stored in the eviction set. Every time a
// region is tracked, it receives a new generation. This allows
// Untrack() to leave stale entries in the eviction set, which is not
// capable of removing arbitrary values. Stale entries are skipped by
// Evict().
type trackedRegion struct {
	id         RegionID
	generation uint64
}

type regionTrackingState struct {
	generation uint64
	tracked    bool
}

type setBackedEvictionPolicy struct {
	newSet     func() eviction.Set[trackedRegion]
	set        eviction.Set[trackedRegion]
	regions    map[RegionID]*regionTrackingState
	numTracked int
}

func newSetBackedEvictionPolicy(newSet func() eviction.Set[trackedRegion]) EvictionPolicy {
	return &setBackedEvictionPolicy{
		newSet:  newSet,
		set:     newSet(),
		regions: map[RegionID]*regionTrackingState{},
	}
}

// NewFIFOEvictionPolicy creates an EvictionPolicy that evicts regions
// in the order in which they were tracked.
func NewFIFOEvictionPolicy() EvictionPolicy {
	return newSetBackedEvictionPolicy(eviction.NewFIFOSet[trackedRegion])
}

// NewLRUEvictionPolicy creates an EvictionPolicy that evicts the
// region that was least recently tracked or touched.
func NewLRUEvictionPolicy() EvictionPolicy {
	return newSetBackedEvictionPolicy(eviction.NewLRUSet[trackedRegion])
}

// NewEvictionPolicyFromConfiguration creates an EvictionPolicy based on
// a cache replacement policy that is specified in a configuration
// file. Operations on the underlying eviction set are exposed through
// Prometheus under the provided name.
func NewEvictionPolicyFromConfiguration(policy pb.CacheReplacementPolicy, name string) (EvictionPolicy, error) {
	if _, err := eviction.NewSetFromConfiguration[trackedRegion](policy); err != nil {
		return nil, util.StatusWrap(err, "Failed to create eviction set")
	}
	return newSetBackedEvictionPolicy(func() eviction.Set[trackedRegion] {
		set, err := eviction.NewSetFromConfiguration[trackedRegion](policy)
		if err != nil {
			panic(err)
		}
		return eviction.NewMetricsSet(set, name)
	}), nil
}

func (p *setBackedEvictionPolicy) Track(id RegionID) {
	state, ok := p.regions[id]
	if !ok {
		state = &regionTrackingState{}
		p.regions[id] = state
	}
	if state.tracked {
		panic(fmt.Sprintf("Attempted to track %s, which is already tracked", id))
	}
	state.generation++
	state.tracked = true
	p.numTracked++
	p.set.Insert(trackedRegion{id: id, generation: state.generation})
}

func (p *setBackedEvictionPolicy) Untrack(id RegionID) bool {
	state, ok := p.regions[id]
	if !ok || !state.tracked {
		return false
	}
	state.tracked = false
	p.numTracked--
	return true
}

func (p *setBackedEvictionPolicy) Touch(id RegionID) {
	if state, ok := p.regions[id]; ok && state.tracked {
		p.set.Touch(trackedRegion{id: id, generation: state.generation})
	}
}

func (p *setBackedEvictionPolicy) Evict() RegionID {
	if p.numTracked == 0 {
		panic("Attempted to evict a region, while no regions are tracked")
	}
	for {
		entry := p.set.Peek()
		p.set.Remove()
		if state := p.regions[entry.id]; state.tracked && state.generation == entry.generation {
			state.tracked = false
			p.numTracked--
			return entry.id
		}
	}
}

func (p *setBackedEvictionPolicy) Len() int {
	return p.numTracked
}

func (p *setBackedEvictionPolicy) Reset() {
	p.set = p.newSet()
	clear(p.regions)
	p.numTracked = 0
}
