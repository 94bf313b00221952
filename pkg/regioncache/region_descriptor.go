package regioncache

// OpenMode indicates whether a RegionDescriptor grants read or write
// access.
type OpenMode int

const (
	// OpenModeNone is used by descriptors that did not grant
	// access.
	OpenModeNone OpenMode = iota
	// OpenModeWrite is used by descriptors returned by
	// Region.OpenAndAllocate().
	OpenModeWrite
	// OpenModeRead is used by descriptors returned by
	// Region.OpenForRead().
	OpenModeRead
)

// RegionDescriptor is a handle that grants access to a region. Every
// descriptor with status OpenStatusReady must be closed exactly once.
type RegionDescriptor struct {
	status   OpenStatus
	mode     OpenMode
	regionID RegionID
	// Whether reads are served by the device, as opposed to the
	// region's buffer. This is decided when the descriptor is
	// opened and does not change afterwards.
	physReadMode bool
	closed       bool
}

func newRegionDescriptorWithStatus(status OpenStatus) *RegionDescriptor {
	return &RegionDescriptor{status: status}
}

// GetStatus returns whether access was granted.
func (d *RegionDescriptor) GetStatus() OpenStatus {
	return d.status
}

// IsReady returns whether access was granted.
func (d *RegionDescriptor) IsReady() bool {
	return d.status == OpenStatusReady
}

// GetMode returns whether the descriptor grants read or write access.
func (d *RegionDescriptor) GetMode() OpenMode {
	return d.mode
}

// GetRegionID returns the identifier of the region to which the
// descriptor grants access.
func (d *RegionDescriptor) GetRegionID() RegionID {
	return d.regionID
}

// IsPhysReadMode returns whether reads through this descriptor are
// served by the device.
func (d *RegionDescriptor) IsPhysReadMode() bool {
	return d.physReadMode
}
