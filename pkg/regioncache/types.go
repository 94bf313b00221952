package regioncache

import (
	"fmt"
)

// RegionID identifies one of the fixed-size slots into which a device
// is partitioned. Slots are recycled through reclamation, but a
// RegionID always refers to the same byte range of the device.
type RegionID uint32

// Index returns the position of the region within the device.
func (id RegionID) Index() uint32 {
	return uint32(id)
}

func (id RegionID) String() string {
	return fmt.Sprintf("region %d", uint32(id))
}

// RelAddress is a location on the device, expressed as an offset
// within a region.
type RelAddress struct {
	RegionID RegionID
	Offset   uint32
}

// Add returns an address that lies a given number of bytes past the
// current one, within the same region.
func (a RelAddress) Add(offset uint32) RelAddress {
	return RelAddress{RegionID: a.RegionID, Offset: a.Offset + offset}
}

// OpenStatus is returned by operations that grant access to a region.
// Running out of space is reported through OpenStatus instead of an
// error, as callers are expected to retry after triggering
// reclamation.
type OpenStatus int

const (
	// OpenStatusReady indicates that access was granted.
	OpenStatusReady OpenStatus = iota
	// OpenStatusRetry indicates that access cannot be granted right
	// now, but may be granted later (e.g., because the region is
	// being reclaimed or no clean region is available).
	OpenStatusRetry
	// OpenStatusError indicates that access cannot be granted to
	// this region until it has been recycled (e.g., because it is
	// full).
	OpenStatusError
)

func (s OpenStatus) String() string {
	switch s {
	case OpenStatusReady:
		return "Ready"
	case OpenStatusRetry:
		return "Retry"
	case OpenStatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// FlushResult is the outcome of flushing a region's buffer to the
// device.
type FlushResult int

const (
	// FlushSuccess indicates that the buffer was written to the
	// device.
	FlushSuccess FlushResult = iota
	// FlushFailed indicates that all permitted attempts to write
	// the buffer failed. The data in the buffer is lost.
	FlushFailed
)

func (r FlushResult) String() string {
	switch r {
	case FlushSuccess:
		return "Success"
	case FlushFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// RegionEvictCallback is invoked when a region is about to be
// reclaimed. It should drop all index entries that point into the
// region. The returned number of bytes is only used for accounting.
//
// The BufferView is only valid for the duration of the call.
type RegionEvictCallback func(id RegionID, data BufferView) uint64

// RegionCleanupCallback is invoked right before a region is made
// available for reuse, or when its buffered data is lost due to
// flushing failing persistently.
//
// The BufferView is only valid for the duration of the call.
type RegionCleanupCallback func(id RegionID, data BufferView)
