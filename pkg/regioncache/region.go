package regioncache

import (
	"fmt"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RegionState is a summary of the lifecycle stage of a region.
type RegionState int

const (
	// RegionStateClean indicates the region holds no data.
	RegionStateClean RegionState = iota
	// RegionStateWriting indicates a writer is open.
	RegionStateWriting
	// RegionStateBuffered indicates the region's data only resides
	// in its in-memory buffer.
	RegionStateBuffered
	// RegionStateFlushed indicates the region's data resides on
	// the device.
	RegionStateFlushed
	// RegionStateReclaiming indicates the region is being
	// reclaimed and admits no new readers or writers.
	RegionStateReclaiming
)

func (s RegionState) String() string {
	switch s {
	case RegionStateClean:
		return "Clean"
	case RegionStateWriting:
		return "Writing"
	case RegionStateBuffered:
		return "Buffered"
	case RegionStateFlushed:
		return "Flushed"
	case RegionStateReclaiming:
		return "Reclaiming"
	default:
		return "Unknown"
	}
}

// Region is a fixed-size slot of the device. It keeps track of how
// much of the slot has been allocated, which readers and writers have
// it opened and whether its in-memory buffer has been written to the
// device.
type Region struct {
	id        RegionID
	sizeBytes uint32
	// Called with the region's buffer once it is no longer needed
	// after a successful flush.
	releaseBuffer func(*Buffer)

	lock sync.Mutex

	// No new readers or writers are admitted.
	blockAccess bool
	// The buffer has been written to the device.
	flushed bool
	// A flush has been requested, but has not completed yet. No
	// new writers are admitted.
	pendingFlush bool
	// The buffer is released as soon as the last in-memory reader
	// closes.
	releaseBufferOnLastReader bool

	lastEntryEndOffset uint32
	numPhysReaders     uint32
	numInMemReaders    uint32
	numWriters         uint32
	buffer             *Buffer
}

// NewRegion creates a Region that is clean.
func NewRegion(id RegionID, sizeBytes uint32) *Region {
	return newRegion(id, sizeBytes, func(*Buffer) {})
}

func newRegion(id RegionID, sizeBytes uint32, releaseBuffer func(*Buffer)) *Region {
	return &Region{
		id:            id,
		sizeBytes:     sizeBytes,
		releaseBuffer: releaseBuffer,
	}
}

// GetID returns the identifier of the region.
func (r *Region) GetID() RegionID {
	return r.id
}

// GetSizeBytes returns the capacity of the region.
func (r *Region) GetSizeBytes() uint32 {
	return r.sizeBytes
}

// GetLastEntryEndOffset returns the number of bytes that have been
// allocated by writers.
func (r *Region) GetLastEntryEndOffset() uint32 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.lastEntryEndOffset
}

// GetNumReaders returns the number of readers that have the region
// opened.
func (r *Region) GetNumReaders() uint32 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.numPhysReaders + r.numInMemReaders
}

// HasBuffer returns whether an in-memory buffer is attached.
func (r *Region) HasBuffer() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.buffer != nil
}

// GetState returns the current lifecycle stage of the region.
func (r *Region) GetState() RegionState {
	r.lock.Lock()
	defer r.lock.Unlock()
	switch {
	case r.blockAccess:
		return RegionStateReclaiming
	case r.numWriters > 0:
		return RegionStateWriting
	case r.flushed:
		return RegionStateFlushed
	case r.buffer != nil:
		return RegionStateBuffered
	default:
		return RegionStateClean
	}
}

// OpenAndAllocate reserves a given number of bytes at the end of the
// region for a writer. OpenStatusRetry is returned if the region is
// being reclaimed or already has a writer. OpenStatusError is returned
// if the region has insufficient space or no longer accepts writes
// (e.g., because it is being flushed).
//
// The allocation cursor is only advanced on success.
func (r *Region) OpenAndAllocate(sizeBytes uint32) (*RegionDescriptor, RelAddress) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.blockAccess || r.numWriters > 0 {
		return newRegionDescriptorWithStatus(OpenStatusRetry), RelAddress{}
	}
	if r.buffer == nil || r.flushed || r.pendingFlush || sizeBytes > r.sizeBytes-r.lastEntryEndOffset {
		return newRegionDescriptorWithStatus(OpenStatusError), RelAddress{}
	}
	address := RelAddress{RegionID: r.id, Offset: r.lastEntryEndOffset}
	r.lastEntryEndOffset += sizeBytes
	r.numWriters++
	return &RegionDescriptor{
		status:   OpenStatusReady,
		mode:     OpenModeWrite,
		regionID: r.id,
	}, address
}

// OpenForRead grants read access to the region. OpenStatusRetry is
// returned if the region is being reclaimed.
func (r *Region) OpenForRead() *RegionDescriptor {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.blockAccess {
		return newRegionDescriptorWithStatus(OpenStatusRetry)
	}
	physReadMode := r.buffer == nil || r.flushed
	if physReadMode {
		r.numPhysReaders++
	} else {
		r.numInMemReaders++
	}
	return &RegionDescriptor{
		status:       OpenStatusReady,
		mode:         OpenModeRead,
		regionID:     r.id,
		physReadMode: physReadMode,
	}
}

// Close releases access that was granted through OpenAndAllocate() or
// OpenForRead(). Closing a descriptor that did not grant access, or
// closing a descriptor twice, is a programming error.
func (r *Region) Close(desc *RegionDescriptor) {
	r.lock.Lock()
	if desc.status != OpenStatusReady {
		r.lock.Unlock()
		panic(fmt.Sprintf("Attempted to close a descriptor of %s with status %s", r.id, desc.status))
	}
	if desc.regionID != r.id {
		r.lock.Unlock()
		panic(fmt.Sprintf("Attempted to close a descriptor of %s through %s", desc.regionID, r.id))
	}
	if desc.closed {
		r.lock.Unlock()
		panic(fmt.Sprintf("Attempted to close a descriptor of %s twice", r.id))
	}
	desc.closed = true

	var bufferToRelease *Buffer
	switch desc.mode {
	case OpenModeWrite:
		if r.numWriters == 0 {
			r.lock.Unlock()
			panic("Invalid writer count")
		}
		r.numWriters--
	case OpenModeRead:
		if desc.physReadMode {
			if r.numPhysReaders == 0 {
				r.lock.Unlock()
				panic("Invalid physical reader count")
			}
			r.numPhysReaders--
		} else {
			if r.numInMemReaders == 0 {
				r.lock.Unlock()
				panic("Invalid in-memory reader count")
			}
			r.numInMemReaders--
			if r.numInMemReaders == 0 && r.releaseBufferOnLastReader {
				bufferToRelease = r.buffer
				r.buffer = nil
				r.releaseBufferOnLastReader = false
			}
		}
	default:
		r.lock.Unlock()
		panic("Invalid open mode")
	}
	r.lock.Unlock()

	if bufferToRelease != nil {
		r.releaseBuffer(bufferToRelease)
	}
}

// ReadFromBuffer returns a copy of a range of the region's in-memory
// buffer. It may only be called through a descriptor that is not in
// physical read mode.
func (r *Region) ReadFromBuffer(desc *RegionDescriptor, offset, sizeBytes uint32) (*Buffer, error) {
	if desc.status != OpenStatusReady || desc.mode != OpenModeRead || desc.physReadMode || desc.closed {
		panic("Descriptor does not permit reading from the region's buffer")
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if r.buffer == nil {
		panic("In-memory reader is open, while the region has no buffer")
	}
	if end := uint64(offset) + uint64(sizeBytes); end > uint64(r.lastEntryEndOffset) {
		return nil, status.Errorf(codes.InvalidArgument, "Read of %d bytes at offset %d exceeds the %d bytes allocated in %s", sizeBytes, offset, r.lastEntryEndOffset, r.id)
	}
	return NewBufferFromBytes(r.buffer.Data()[offset : offset+sizeBytes]), nil
}

// writeToBuffer copies data into the region's buffer. The range must
// lie within space that was allocated through OpenAndAllocate().
func (r *Region) writeToBuffer(offset uint32, p []byte) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.numWriters == 0 {
		panic(fmt.Sprintf("Attempted to write to %s without an open writer", r.id))
	}
	if r.buffer == nil {
		panic(fmt.Sprintf("Attempted to write to %s without a buffer", r.id))
	}
	if end := uint64(offset) + uint64(len(p)); end > uint64(r.lastEntryEndOffset) {
		return status.Errorf(codes.InvalidArgument, "Write of %d bytes at offset %d exceeds the %d bytes allocated in %s", len(p), offset, r.lastEntryEndOffset, r.id)
	}
	copy(r.buffer.Data()[offset:], p)
	return nil
}

// attachBuffer provides a clean region with the buffer into which
// writers store their data.
func (r *Region) attachBuffer(buffer *Buffer) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.buffer != nil {
		panic(fmt.Sprintf("%s already has a buffer attached", r.id))
	}
	if r.lastEntryEndOffset != 0 || r.flushed || r.blockAccess {
		panic(fmt.Sprintf("Attempted to attach a buffer to %s, which is not clean", r.id))
	}
	r.buffer = buffer
}

// startFlush seals the region, so that no further writers are
// admitted. Regions only become eligible for reclamation after being
// flushed, so flushing a region that is being reclaimed is a
// programming error.
func (r *Region) startFlush() {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.blockAccess {
		panic(fmt.Sprintf("Attempted to flush %s, which is being reclaimed", r.id))
	}
	if r.numWriters > 0 {
		panic(fmt.Sprintf("Attempted to flush %s while a writer is open", r.id))
	}
	if r.buffer == nil || r.flushed {
		panic(fmt.Sprintf("Attempted to flush %s, which has no unflushed buffer", r.id))
	}
	if r.pendingFlush {
		panic(fmt.Sprintf("Attempted to flush %s, which is already being flushed", r.id))
	}
	r.pendingFlush = true
}

// getFlushBuffer returns the buffer that needs to be written to the
// device. The buffer is not modified while flushing takes place, as no
// writers are admitted.
func (r *Region) getFlushBuffer() *Buffer {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.numWriters > 0 {
		panic(fmt.Sprintf("Attempted to flush %s while a writer is open", r.id))
	}
	if r.buffer == nil {
		panic(fmt.Sprintf("Attempted to flush %s without a buffer", r.id))
	}
	return r.buffer
}

// markFlushed records that the buffer has been written to the device.
// Readers that are opened from now on read from the device. If no
// in-memory readers are open, the buffer is detached and returned.
// Otherwise it is released when the last in-memory reader closes.
func (r *Region) markFlushed() *Buffer {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.flushed = true
	r.pendingFlush = false
	if r.numInMemReaders > 0 {
		r.releaseBufferOnLastReader = true
		return nil
	}
	buffer := r.buffer
	r.buffer = nil
	return buffer
}

// getBufferView returns a view of the allocated part of the buffer,
// or a null view if no buffer is attached.
func (r *Region) getBufferView() BufferView {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.buffer == nil {
		return BufferView{}
	}
	return r.buffer.View().Slice(0, int(r.lastEntryEndOffset))
}

// tryDetachBufferAfterFailure detaches the buffer after flushing
// failed, but only if no readers or writers are open. Access to the
// region is blocked, as its contents are no longer available.
func (r *Region) tryDetachBufferAfterFailure() (*Buffer, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.numInMemReaders > 0 || r.numPhysReaders > 0 || r.numWriters > 0 {
		return nil, false
	}
	r.blockAccess = true
	buffer := r.buffer
	r.buffer = nil
	return buffer, true
}

// readyForReclaim blocks all new access to the region and returns
// whether all readers have closed. Only flushed regions are reclaimed,
// so the region has no writer.
func (r *Region) readyForReclaim() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.numWriters > 0 || r.pendingFlush {
		panic(fmt.Sprintf("Attempted to reclaim %s, which has not been flushed", r.id))
	}
	r.blockAccess = true
	return r.numPhysReaders == 0 && r.numInMemReaders == 0
}

// detachBuffer removes the buffer from a region that is being
// reclaimed.
func (r *Region) detachBuffer() *Buffer {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.numInMemReaders > 0 || r.numWriters > 0 {
		panic(fmt.Sprintf("Attempted to detach the buffer of %s while it is in use", r.id))
	}
	buffer := r.buffer
	r.buffer = nil
	r.releaseBufferOnLastReader = false
	return buffer
}

// isIdle returns whether the region has no buffer attached and no
// access to it is in progress.
func (r *Region) isIdle() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return !r.blockAccess && !r.pendingFlush && r.buffer == nil && r.numWriters == 0 && r.numPhysReaders == 0 && r.numInMemReaders == 0
}

// reset returns the region to the clean state.
func (r *Region) reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.numWriters > 0 || r.numPhysReaders > 0 || r.numInMemReaders > 0 {
		panic(fmt.Sprintf("Attempted to reset %s while it is in use", r.id))
	}
	if r.buffer != nil {
		panic(fmt.Sprintf("Attempted to reset %s while it has a buffer attached", r.id))
	}
	r.blockAccess = false
	r.flushed = false
	r.pendingFlush = false
	r.releaseBufferOnLastReader = false
	r.lastEntryEndOffset = 0
}
