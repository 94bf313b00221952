package mock

//go:generate mockgen -destination aliases.go -package mock github.com/buildbarn/bb-region-cache/internal/mock/aliases RegionCleanupCallback,RegionEvictCallback
//go:generate mockgen -destination blockdevice.go -package mock github.com/buildbarn/bb-storage/pkg/blockdevice BlockDevice
//go:generate mockgen -destination device.go -package mock github.com/buildbarn/bb-region-cache/pkg/device Device
//go:generate mockgen -destination jobscheduler.go -package mock github.com/buildbarn/bb-region-cache/pkg/jobscheduler JobScheduler
//go:generate mockgen -destination util.go -package mock github.com/buildbarn/bb-storage/pkg/util ErrorLogger
