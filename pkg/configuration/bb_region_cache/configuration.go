package configuration

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	pb "github.com/buildbarn/bb-storage/pkg/proto/configuration/eviction"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/google/go-jsonnet"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ApplicationConfiguration is the top-level configuration of
// bb_region_cache.
type ApplicationConfiguration struct {
	// Address on which to expose Prometheus metrics and region
	// state, e.g. ":9980".
	HTTPListenAddress string `json:"httpListenAddress"`

	Device        *DeviceConfiguration        `json:"device"`
	RegionManager *RegionManagerConfiguration `json:"regionManager"`

	// Name of the bb-storage CacheReplacementPolicy used to pick
	// regions for reclamation, e.g. "LEAST_RECENTLY_USED".
	EvictionPolicy string `json:"evictionPolicy"`

	JobScheduler *JobSchedulerConfiguration `json:"jobScheduler"`
	Workload     *WorkloadConfiguration     `json:"workload"`
}

// DeviceBackend selects the storage on which regions are persisted.
type DeviceBackend string

const (
	// DeviceBackendMemory stores regions in a byte slice.
	DeviceBackendMemory DeviceBackend = "memory"
	// DeviceBackendFile stores regions in a file or raw block
	// device, accessed through the page cache.
	DeviceBackendFile DeviceBackend = "file"
	// DeviceBackendDirectIO stores regions in a file that is
	// accessed with O_DIRECT.
	DeviceBackendDirectIO DeviceBackend = "directIo"
)

// DeviceConfiguration describes the device on which regions are stored.
type DeviceConfiguration struct {
	Backend DeviceBackend `json:"backend"`
	// Path of the file or block device. Ignored by the memory
	// backend.
	Path      string `json:"path"`
	SizeBytes uint64 `json:"sizeBytes"`
}

// RegionManagerConfiguration controls how the device is partitioned
// into regions and how regions are recycled.
type RegionManagerConfiguration struct {
	NumRegions      uint32 `json:"numRegions"`
	RegionSizeBytes uint32 `json:"regionSizeBytes"`
	BaseOffsetBytes uint64 `json:"baseOffsetBytes"`
	// Number of clean regions to keep available to writers.
	NumCleanRegions uint32 `json:"numCleanRegions"`
	// Number of region-sized buffers that may hold unflushed data
	// at any point in time.
	NumInMemBuffers uint32 `json:"numInMemBuffers"`
	// Number of reclamations to schedule at startup.
	InitialReclaims uint32 `json:"initialReclaims"`
	// Maximum number of device writes attempted per flush.
	FlushRetryLimit uint32 `json:"flushRetryLimit"`
}

// JobSchedulerConfiguration controls the goroutines that run
// reclamation and flush jobs.
type JobSchedulerConfiguration struct {
	Concurrency int  `json:"concurrency"`
	Tracing     bool `json:"tracing"`
}

// WorkloadConfiguration describes the synthetic read/write workload
// that bb_region_cache runs against the region manager.
type WorkloadConfiguration struct {
	Writers        int    `json:"writers"`
	Readers        int    `json:"readers"`
	EntrySizeBytes uint32 `json:"entrySizeBytes"`
	// Duration in time.ParseDuration() format. An empty string
	// causes the workload to run until the process is terminated.
	Duration string `json:"duration"`
}

// GetDuration parses the configured duration of the workload. A zero
// value indicates that the workload should run indefinitely.
func (c *WorkloadConfiguration) GetDuration() (time.Duration, error) {
	if c.Duration == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Duration)
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "Invalid workload duration %#v: %s", c.Duration, err)
	}
	return d, nil
}

// GetEvictionPolicy converts the name of the configured eviction
// policy to its enumeration value.
func (c *ApplicationConfiguration) GetEvictionPolicy() (pb.CacheReplacementPolicy, error) {
	policy, ok := pb.CacheReplacementPolicy_value[c.EvictionPolicy]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "Unknown eviction policy %#v", c.EvictionPolicy)
	}
	return pb.CacheReplacementPolicy(policy), nil
}

// GetApplicationConfiguration reads the configuration from a Jsonnet
// file, fills in default values and validates the result. Environment
// variables are exposed to the Jsonnet file as external variables.
func GetApplicationConfiguration(path string) (*ApplicationConfiguration, error) {
	vm := jsonnet.MakeVM()
	for _, env := range os.Environ() {
		if key, value, ok := strings.Cut(env, "="); ok {
			vm.ExtVar(key, value)
		}
	}
	serialized, err := vm.EvaluateFile(path)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "Failed to evaluate configuration: %s", err)
	}
	configuration, err := unmarshalApplicationConfiguration(serialized)
	if err != nil {
		return nil, util.StatusWrap(err, "Failed to retrieve configuration")
	}
	return configuration, nil
}

func unmarshalApplicationConfiguration(serialized string) (*ApplicationConfiguration, error) {
	decoder := json.NewDecoder(strings.NewReader(serialized))
	decoder.DisallowUnknownFields()
	var configuration ApplicationConfiguration
	if err := decoder.Decode(&configuration); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "Failed to unmarshal configuration: %s", err)
	}
	setDefaultApplicationValues(&configuration)
	if err := validateApplicationConfiguration(&configuration); err != nil {
		return nil, err
	}
	return &configuration, nil
}

func setDefaultApplicationValues(configuration *ApplicationConfiguration) {
	if configuration.EvictionPolicy == "" {
		configuration.EvictionPolicy = "LEAST_RECENTLY_USED"
	}
	if configuration.Device == nil {
		configuration.Device = &DeviceConfiguration{}
	}
	if configuration.Device.Backend == "" {
		configuration.Device.Backend = DeviceBackendMemory
	}

	if configuration.RegionManager == nil {
		configuration.RegionManager = &RegionManagerConfiguration{}
	}
	rm := configuration.RegionManager
	if rm.NumRegions == 0 {
		rm.NumRegions = 64
	}
	if rm.RegionSizeBytes == 0 {
		rm.RegionSizeBytes = 1 << 20
	}
	if rm.NumCleanRegions == 0 {
		rm.NumCleanRegions = 1
	}
	if rm.NumInMemBuffers == 0 {
		rm.NumInMemBuffers = 2 * rm.NumCleanRegions
	}
	if rm.FlushRetryLimit == 0 {
		rm.FlushRetryLimit = 10
	}
	if configuration.Device.SizeBytes == 0 {
		configuration.Device.SizeBytes = rm.BaseOffsetBytes + uint64(rm.NumRegions)*uint64(rm.RegionSizeBytes)
	}

	if configuration.JobScheduler == nil {
		configuration.JobScheduler = &JobSchedulerConfiguration{}
	}
	if configuration.JobScheduler.Concurrency == 0 {
		configuration.JobScheduler.Concurrency = 1
	}

	if configuration.Workload == nil {
		configuration.Workload = &WorkloadConfiguration{}
	}
	if configuration.Workload.EntrySizeBytes == 0 {
		configuration.Workload.EntrySizeBytes = 4096
	}
}

// directIOBlockSizeBytes matches directio.BlockSize, which is the
// alignment required by O_DIRECT on all supported platforms.
const directIOBlockSizeBytes = 4096

func validateApplicationConfiguration(configuration *ApplicationConfiguration) error {
	rm := configuration.RegionManager
	requiredSizeBytes := rm.BaseOffsetBytes + uint64(rm.NumRegions)*uint64(rm.RegionSizeBytes)
	if configuration.Device.SizeBytes < requiredSizeBytes {
		return status.Errorf(codes.InvalidArgument, "Device size of %d bytes is too small to hold %d regions of %d bytes at base offset %d", configuration.Device.SizeBytes, rm.NumRegions, rm.RegionSizeBytes, rm.BaseOffsetBytes)
	}
	if rm.NumCleanRegions >= rm.NumRegions {
		return status.Errorf(codes.InvalidArgument, "Number of clean regions (%d) must be smaller than the number of regions (%d)", rm.NumCleanRegions, rm.NumRegions)
	}
	if rm.NumInMemBuffers < rm.NumCleanRegions {
		return status.Errorf(codes.InvalidArgument, "Number of in-memory buffers (%d) must be at least the number of clean regions (%d)", rm.NumInMemBuffers, rm.NumCleanRegions)
	}

	switch configuration.Device.Backend {
	case DeviceBackendMemory:
	case DeviceBackendFile:
		if configuration.Device.Path == "" {
			return status.Error(codes.InvalidArgument, "File backed devices require a path")
		}
	case DeviceBackendDirectIO:
		if configuration.Device.Path == "" {
			return status.Error(codes.InvalidArgument, "Direct I/O devices require a path")
		}
		if rm.BaseOffsetBytes%directIOBlockSizeBytes != 0 || rm.RegionSizeBytes%directIOBlockSizeBytes != 0 || configuration.Device.SizeBytes%directIOBlockSizeBytes != 0 {
			return status.Errorf(codes.InvalidArgument, "Direct I/O devices require the base offset, region size and device size to be multiples of %d bytes", directIOBlockSizeBytes)
		}
	default:
		return status.Errorf(codes.InvalidArgument, "Unknown device backend %#v", configuration.Device.Backend)
	}

	if _, err := configuration.GetEvictionPolicy(); err != nil {
		return err
	}
	if configuration.JobScheduler.Concurrency < 1 {
		return status.Error(codes.InvalidArgument, "Job scheduler concurrency must be positive")
	}
	if configuration.Workload.EntrySizeBytes > rm.RegionSizeBytes {
		return status.Errorf(codes.InvalidArgument, "Workload entry size of %d bytes exceeds the region size of %d bytes", configuration.Workload.EntrySizeBytes, rm.RegionSizeBytes)
	}
	if _, err := configuration.Workload.GetDuration(); err != nil {
		return err
	}
	return nil
}
