package device_test

import (
	"os"
	"path/filepath"
	"testing"

	configuration "github.com/buildbarn/bb-region-cache/pkg/configuration/bb_region_cache"
	"github.com/buildbarn/bb-region-cache/pkg/device"
	"github.com/buildbarn/bb-storage/pkg/testutil"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNewDeviceFromConfiguration(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		d, err := device.NewDeviceFromConfiguration(&configuration.DeviceConfiguration{
			Backend:   configuration.DeviceBackendMemory,
			SizeBytes: 1 << 20,
		})
		require.NoError(t, err)
		require.Equal(t, uint64(1<<20), d.GetSizeBytes())
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cache")
		d, err := device.NewDeviceFromConfiguration(&configuration.DeviceConfiguration{
			Backend:   configuration.DeviceBackendFile,
			Path:      path,
			SizeBytes: 1 << 20,
		})
		require.NoError(t, err)
		require.Equal(t, uint64(1<<20), d.GetSizeBytes())

		require.NoError(t, d.Write(12345, []byte("Hello")))
		p := make([]byte, 5)
		require.NoError(t, d.Read(12345, p))
		require.Equal(t, []byte("Hello"), p)

		// Data is persisted in the backing file once the device
		// is synchronized and closed.
		require.NoError(t, d.Sync())
		require.NoError(t, d.Close())
		contents, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, []byte("Hello"), contents[12345:12350])
	})

	t.Run("UnknownBackend", func(t *testing.T) {
		_, err := device.NewDeviceFromConfiguration(&configuration.DeviceConfiguration{
			Backend:   "tape",
			SizeBytes: 1 << 20,
		})
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Unknown device backend \"tape\""), err)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := device.NewDeviceFromConfiguration(nil)
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "No device configuration provided"), err)
	})
}
