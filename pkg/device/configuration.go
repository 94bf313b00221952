package device

import (
	configuration "github.com/buildbarn/bb-region-cache/pkg/configuration/bb_region_cache"
	"github.com/buildbarn/bb-storage/pkg/blockdevice"
	"github.com/buildbarn/bb-storage/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewDeviceFromConfiguration creates a Device based on parameters
// provided in a configuration file.
func NewDeviceFromConfiguration(deviceConfiguration *configuration.DeviceConfiguration) (Device, error) {
	if deviceConfiguration == nil {
		return nil, status.Error(codes.InvalidArgument, "No device configuration provided")
	}
	switch deviceConfiguration.Backend {
	case configuration.DeviceBackendMemory:
		return NewInMemoryDevice(deviceConfiguration.SizeBytes), nil
	case configuration.DeviceBackendFile:
		blockDevice, sectorSizeBytes, sectorCount, err := blockdevice.NewBlockDeviceFromFile(deviceConfiguration.Path, int(deviceConfiguration.SizeBytes), true)
		if err != nil {
			return nil, util.StatusWrapf(err, "Failed to open block device %#v", deviceConfiguration.Path)
		}
		if available := uint64(sectorSizeBytes) * uint64(sectorCount); available < deviceConfiguration.SizeBytes {
			blockDevice.Close()
			return nil, status.Errorf(codes.InvalidArgument, "Block device %#v has a size of %d bytes, while %d bytes are required", deviceConfiguration.Path, available, deviceConfiguration.SizeBytes)
		}
		return NewBlockDeviceBackedDevice(blockDevice, deviceConfiguration.SizeBytes), nil
	case configuration.DeviceBackendDirectIO:
		return NewDirectIODevice(deviceConfiguration.Path, deviceConfiguration.SizeBytes)
	default:
		return nil, status.Errorf(codes.InvalidArgument, "Unknown device backend %#v", deviceConfiguration.Backend)
	}
}
