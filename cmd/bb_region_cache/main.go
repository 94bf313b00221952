package main

import (
	"context"
	"log"
	"net/http"

	configuration "github.com/buildbarn/bb-region-cache/pkg/configuration/bb_region_cache"
	"github.com/buildbarn/bb-region-cache/pkg/device"
	"github.com/buildbarn/bb-region-cache/pkg/jobscheduler"
	"github.com/buildbarn/bb-region-cache/pkg/regioncache"
	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/buildbarn/bb-storage/pkg/program"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/spf13/pflag"

	"go.opentelemetry.io/otel"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// bb_region_cache partitions a device into regions and runs a synthetic
// workload against them. Writers fill clean regions with objects,
// readers validate them, and regions are flushed and reclaimed in the
// background. It can be used to benchmark devices and to validate
// reclamation under load.

func main() {
	program.RunMain(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
		duration := pflag.Duration("duration", 0, "Amount of time to run the workload, overriding the configuration file")
		pflag.Parse()
		if pflag.NArg() != 1 {
			return status.Error(codes.InvalidArgument, "Usage: bb_region_cache [--duration=...] bb_region_cache.jsonnet")
		}
		applicationConfiguration, err := configuration.GetApplicationConfiguration(pflag.Arg(0))
		if err != nil {
			return util.StatusWrapf(err, "Failed to read configuration from %s", pflag.Arg(0))
		}
		workloadDuration, err := applicationConfiguration.Workload.GetDuration()
		if err != nil {
			return err
		}
		if *duration > 0 {
			workloadDuration = *duration
		}

		dev, err := device.NewDeviceFromConfiguration(applicationConfiguration.Device)
		if err != nil {
			return util.StatusWrap(err, "Failed to create device")
		}
		dev = device.NewMetricsDevice(dev, clock.SystemClock, "RegionManager")

		// Reclamation and asynchronous flushing are performed by
		// a pool of workers that is shut down after the workload
		// completes. The device is synchronized and closed once all
		// workers have terminated.
		workerPools := make(chan jobscheduler.JobScheduler, 1)
		dependenciesGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
			workerPools <- jobscheduler.NewWorkerPoolJobScheduler(siblingsGroup, applicationConfiguration.JobScheduler.Concurrency)
			dependenciesGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
				<-ctx.Done()
				syncErr := dev.Sync()
				if err := dev.Close(); err != nil {
					return err
				}
				return syncErr
			})
			return nil
		})
		scheduler := jobscheduler.NewMetricsJobScheduler(<-workerPools, clock.SystemClock)
		if applicationConfiguration.JobScheduler.Tracing {
			scheduler = jobscheduler.NewTracingJobScheduler(scheduler, otel.GetTracerProvider())
		}

		evictionPolicy, err := applicationConfiguration.GetEvictionPolicy()
		if err != nil {
			return err
		}
		index := newEntryIndex()
		regionManager, err := regioncache.NewRegionManagerFromConfiguration(
			dev,
			scheduler,
			evictionPolicy,
			index.evictRegion,
			index.cleanupRegion,
			clock.SystemClock,
			util.DefaultErrorLogger,
			applicationConfiguration.RegionManager)
		if err != nil {
			return util.StatusWrap(err, "Failed to create region manager")
		}

		// Web server for metrics and region state.
		if listenAddress := applicationConfiguration.HTTPListenAddress; listenAddress != "" {
			server := &http.Server{
				Addr:    listenAddress,
				Handler: newRouter(regionManager, index, util.DefaultErrorLogger),
			}
			siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
				go func() {
					<-ctx.Done()
					server.Close()
				}()
				if err := server.ListenAndServe(); err != http.ErrServerClosed {
					return util.StatusWrap(err, "HTTP server failure")
				}
				return nil
			})
		}

		w := &workload{
			regionManager:  regionManager,
			index:          index,
			entrySizeBytes: applicationConfiguration.Workload.EntrySizeBytes,
		}
		workloadCtx := ctx
		if workloadDuration > 0 {
			var cancel context.CancelFunc
			workloadCtx, cancel = context.WithTimeout(ctx, workloadDuration)
			defer cancel()
		}
		timeStart := clock.SystemClock.Now()
		if err := w.run(workloadCtx, applicationConfiguration.Workload.Writers, applicationConfiguration.Workload.Readers); err != nil {
			return util.StatusWrap(err, "Workload failed")
		}

		statistics := regionManager.GetStatistics()
		log.Printf(
			"Workload completed after %s: %d objects written, %d objects verified, %d reads skipped, %d regions lost, %d clean regions",
			clock.SystemClock.Now().Sub(timeStart),
			w.objectsWritten.Load(),
			w.objectsVerified.Load(),
			w.readsSkipped.Load(),
			index.getNumLostRegions(),
			statistics.NumCleanRegions)
		return nil
	})
}
