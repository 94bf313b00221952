package aliases

import (
	"github.com/buildbarn/bb-region-cache/pkg/regioncache"
)

// This file contains interface types for the callbacks that are
// provided to RegionManager. They allow mocks to be generated for
// these function types, so that tests can set expectations on when
// callbacks are invoked.

// RegionEvictCallback has a Call method with the same signature as
// regioncache.RegionEvictCallback.
type RegionEvictCallback interface {
	Call(id regioncache.RegionID, data regioncache.BufferView) uint64
}

// RegionCleanupCallback has a Call method with the same signature as
// regioncache.RegionCleanupCallback.
type RegionCleanupCallback interface {
	Call(id regioncache.RegionID, data regioncache.BufferView)
}
