package regioncache

import (
	configuration "github.com/buildbarn/bb-region-cache/pkg/configuration/bb_region_cache"
	"github.com/buildbarn/bb-region-cache/pkg/device"
	"github.com/buildbarn/bb-region-cache/pkg/jobscheduler"
	"github.com/buildbarn/bb-storage/pkg/clock"
	pb "github.com/buildbarn/bb-storage/pkg/proto/configuration/eviction"
	"github.com/buildbarn/bb-storage/pkg/util"
)

// NewRegionManagerFromConfiguration creates a RegionManager based on
// parameters provided in a configuration file. Operations on the
// eviction policy are exposed through Prometheus.
func NewRegionManagerFromConfiguration(dev device.Device, scheduler jobscheduler.JobScheduler, evictionPolicy pb.CacheReplacementPolicy, evictCallback RegionEvictCallback, cleanupCallback RegionCleanupCallback, clock clock.Clock, errorLogger util.ErrorLogger, regionManagerConfiguration *configuration.RegionManagerConfiguration) (*RegionManager, error) {
	policy, err := NewEvictionPolicyFromConfiguration(evictionPolicy, "RegionManager")
	if err != nil {
		return nil, err
	}
	return NewRegionManager(
		dev,
		scheduler,
		policy,
		evictCallback,
		cleanupCallback,
		clock,
		errorLogger,
		&RegionManagerConfiguration{
			NumRegions:      regionManagerConfiguration.NumRegions,
			RegionSizeBytes: regionManagerConfiguration.RegionSizeBytes,
			BaseOffsetBytes: regionManagerConfiguration.BaseOffsetBytes,
			NumCleanRegions: regionManagerConfiguration.NumCleanRegions,
			NumInMemBuffers: regionManagerConfiguration.NumInMemBuffers,
			InitialReclaims: regionManagerConfiguration.InitialReclaims,
			FlushRetryLimit: regionManagerConfiguration.FlushRetryLimit,
		})
}
