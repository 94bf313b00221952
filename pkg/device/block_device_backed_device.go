package device

import (
	"io"
	"math"

	"github.com/buildbarn/bb-storage/pkg/blockdevice"
	"github.com/buildbarn/bb-storage/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type blockDeviceBackedDevice struct {
	blockDevice blockdevice.BlockDevice
	sizeBytes   uint64
}

// NewBlockDeviceBackedDevice creates a Device that stores data directly
// on a block device, such as a raw disk partition or a file that was
// opened through blockdevice.NewBlockDeviceFromFile().
func NewBlockDeviceBackedDevice(blockDevice blockdevice.BlockDevice, sizeBytes uint64) Device {
	if sizeBytes > math.MaxInt64 {
		panic("Block device size exceeds the maximum file offset")
	}
	return &blockDeviceBackedDevice{
		blockDevice: blockDevice,
		sizeBytes:   sizeBytes,
	}
}

func (d *blockDeviceBackedDevice) Read(offset uint64, p []byte) error {
	if err := checkBounds("Read", offset, len(p), d.sizeBytes); err != nil {
		return err
	}
	n, err := d.blockDevice.ReadAt(p, int64(offset))
	if err != nil && (err != io.EOF || n != len(p)) {
		return util.StatusWrapf(err, "Failed to read %d bytes at offset %d", len(p), offset)
	}
	if n != len(p) {
		return status.Errorf(codes.Internal, "Short read of %d bytes at offset %d: got %d bytes", len(p), offset, n)
	}
	return nil
}

func (d *blockDeviceBackedDevice) Write(offset uint64, p []byte) error {
	if err := checkBounds("Write", offset, len(p), d.sizeBytes); err != nil {
		return err
	}
	n, err := d.blockDevice.WriteAt(p, int64(offset))
	if err != nil {
		return util.StatusWrapf(err, "Failed to write %d bytes at offset %d", len(p), offset)
	}
	if n != len(p) {
		return status.Errorf(codes.Internal, "Short write of %d bytes at offset %d: wrote %d bytes", len(p), offset, n)
	}
	return nil
}

func (d *blockDeviceBackedDevice) GetSizeBytes() uint64 {
	return d.sizeBytes
}

func (d *blockDeviceBackedDevice) Sync() error {
	if err := d.blockDevice.Sync(); err != nil {
		return util.StatusWrap(err, "Failed to synchronize block device")
	}
	return nil
}

func (d *blockDeviceBackedDevice) Close() error {
	if err := d.blockDevice.Close(); err != nil {
		return util.StatusWrap(err, "Failed to close block device")
	}
	return nil
}
