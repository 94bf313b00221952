package configuration_test

import (
	"os"
	"path/filepath"
	"testing"

	configuration "github.com/buildbarn/bb-region-cache/pkg/configuration/bb_region_cache"
	pb "github.com/buildbarn/bb-storage/pkg/proto/configuration/eviction"
	"github.com/buildbarn/bb-storage/pkg/testutil"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func writeConfiguration(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "bb_region_cache.jsonnet")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestGetApplicationConfiguration(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		c, err := configuration.GetApplicationConfiguration(writeConfiguration(t, "{}"))
		require.NoError(t, err)
		require.Equal(t, configuration.DeviceBackendMemory, c.Device.Backend)
		require.Equal(t, uint64(64<<20), c.Device.SizeBytes)
		require.Equal(t, &configuration.RegionManagerConfiguration{
			NumRegions:      64,
			RegionSizeBytes: 1 << 20,
			NumCleanRegions: 1,
			NumInMemBuffers: 2,
			FlushRetryLimit: 10,
		}, c.RegionManager)
		require.Equal(t, 1, c.JobScheduler.Concurrency)
		require.Equal(t, uint32(4096), c.Workload.EntrySizeBytes)

		policy, err := c.GetEvictionPolicy()
		require.NoError(t, err)
		require.Equal(t, pb.CacheReplacementPolicy_LEAST_RECENTLY_USED, policy)
	})

	t.Run("ExternalVariables", func(t *testing.T) {
		t.Setenv("REGION_CACHE_POLICY", "FIRST_IN_FIRST_OUT")
		c, err := configuration.GetApplicationConfiguration(writeConfiguration(t, `{
			evictionPolicy: std.extVar('REGION_CACHE_POLICY'),
			regionManager: {
				numRegions: 8,
				regionSizeBytes: 8192,
				baseOffsetBytes: 4096,
			},
			workload: { duration: '30s' },
		}`))
		require.NoError(t, err)
		policy, err := c.GetEvictionPolicy()
		require.NoError(t, err)
		require.Equal(t, pb.CacheReplacementPolicy_FIRST_IN_FIRST_OUT, policy)
		require.Equal(t, uint64(4096+8*8192), c.Device.SizeBytes)
	})

	t.Run("UnknownField", func(t *testing.T) {
		_, err := configuration.GetApplicationConfiguration(writeConfiguration(t, "{ numberOfRegions: 3 }"))
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("SyntaxError", func(t *testing.T) {
		_, err := configuration.GetApplicationConfiguration(writeConfiguration(t, "{"))
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("DeviceTooSmall", func(t *testing.T) {
		_, err := configuration.GetApplicationConfiguration(writeConfiguration(t, `{
			device: { sizeBytes: 1024 },
			regionManager: { numRegions: 4, regionSizeBytes: 4096 },
		}`))
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Failed to retrieve configuration: Device size of 1024 bytes is too small to hold 4 regions of 4096 bytes at base offset 0"), err)
	})

	t.Run("UnalignedDirectIO", func(t *testing.T) {
		_, err := configuration.GetApplicationConfiguration(writeConfiguration(t, `{
			device: { backend: 'directIo', path: '/tmp/regions' },
			regionManager: { numRegions: 4, regionSizeBytes: 4096, baseOffsetBytes: 512 },
		}`))
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("MissingPath", func(t *testing.T) {
		_, err := configuration.GetApplicationConfiguration(writeConfiguration(t, `{
			device: { backend: 'file' },
		}`))
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Failed to retrieve configuration: File backed devices require a path"), err)
	})

	t.Run("UnknownEvictionPolicy", func(t *testing.T) {
		_, err := configuration.GetApplicationConfiguration(writeConfiguration(t, `{
			evictionPolicy: 'MOST_RECENTLY_USED',
		}`))
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Failed to retrieve configuration: Unknown eviction policy \"MOST_RECENTLY_USED\""), err)
	})

	t.Run("TooManyCleanRegions", func(t *testing.T) {
		_, err := configuration.GetApplicationConfiguration(writeConfiguration(t, `{
			regionManager: { numRegions: 2, numCleanRegions: 2, regionSizeBytes: 4096 },
		}`))
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Failed to retrieve configuration: Number of clean regions (2) must be smaller than the number of regions (2)"), err)
	})
}
