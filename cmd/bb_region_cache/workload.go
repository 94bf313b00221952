package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/buildbarn/bb-region-cache/pkg/regioncache"
	"github.com/buildbarn/bb-storage/pkg/random"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/cespare/xxhash/v2"

	"golang.org/x/sync/errgroup"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// retryDelay is the amount of time writers and readers back off when
// the region manager asks them to retry.
const retryDelay = time.Millisecond

// workload is a synthetic load generator. Writers fill clean regions
// with random objects and flush them once full, or once the workload
// is stopped. Readers pick random objects from the index and validate
// their checksums.
type workload struct {
	regionManager  *regioncache.RegionManager
	index          *entryIndex
	entrySizeBytes uint32

	objectsWritten  atomic.Uint64
	objectsVerified atomic.Uint64
	readsSkipped    atomic.Uint64
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (w *workload) run(ctx context.Context, writers, readers int) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < writers; i++ {
		group.Go(func() error { return w.runWriter(groupCtx) })
	}
	for i := 0; i < readers; i++ {
		group.Go(func() error { return w.runReader(groupCtx) })
	}
	return group.Wait()
}

func (w *workload) runWriter(ctx context.Context) error {
	for ctx.Err() == nil {
		id, openStatus := w.regionManager.GetCleanRegion()
		if openStatus != regioncache.OpenStatusReady {
			sleepOrDone(ctx, retryDelay)
			continue
		}
		// Regions only become eligible for reclamation after
		// being flushed, so every region is flushed, regardless
		// of whether it was filled up.
		err := w.fillRegion(ctx, w.regionManager.GetRegion(id))
		w.regionManager.DoFlush(id, true)
		if err != nil {
			return err
		}
	}
	return nil
}

// fillRegion writes objects into a region until it is full.
func (w *workload) fillRegion(ctx context.Context, region *regioncache.Region) error {
	for ctx.Err() == nil {
		desc, address := region.OpenAndAllocate(w.entrySizeBytes)
		switch desc.GetStatus() {
		case regioncache.OpenStatusError:
			return nil
		case regioncache.OpenStatusRetry:
			return status.Errorf(codes.Internal, "Writer was denied access to %s, which it owns", region.GetID())
		}

		payload := regioncache.NewBuffer(int(w.entrySizeBytes))
		random.FastThreadSafeGenerator.Read(payload.Data())
		err := w.regionManager.Write(address, payload)
		w.regionManager.Close(desc)
		if err != nil {
			return err
		}
		w.index.add(indexEntry{
			address:   address,
			sizeBytes: w.entrySizeBytes,
			checksum:  xxhash.Sum64(payload.Data()),
		})
		w.objectsWritten.Add(1)
	}
	return nil
}

func (w *workload) runReader(ctx context.Context) error {
	numRegions := int(w.regionManager.GetNumRegions())
	for ctx.Err() == nil {
		id := regioncache.RegionID(random.FastThreadSafeGenerator.IntN(numRegions))
		entry, ok := w.index.getRandom(id)
		if !ok {
			sleepOrDone(ctx, retryDelay)
			continue
		}
		if err := w.readEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

func (w *workload) readEntry(entry indexEntry) error {
	desc := w.regionManager.OpenForRead(entry.address.RegionID)
	if !desc.IsReady() {
		w.readsSkipped.Add(1)
		return nil
	}
	defer w.regionManager.Close(desc)

	// Once the region is opened, it can no longer be reclaimed. The
	// entry is only valid if it was not removed before that.
	if !w.index.contains(entry) {
		w.readsSkipped.Add(1)
		return nil
	}
	w.regionManager.Touch(entry.address.RegionID)
	data, err := w.regionManager.Read(desc, entry.address, entry.sizeBytes)
	if err != nil {
		return util.StatusWrapf(err, "Failed to read object at offset %d of %s", entry.address.Offset, entry.address.RegionID)
	}
	if checksum := xxhash.Sum64(data.Data()); checksum != entry.checksum {
		return status.Errorf(codes.DataLoss, "Object at offset %d of %s has checksum %016x, while %016x was expected", entry.address.Offset, entry.address.RegionID, checksum, entry.checksum)
	}
	w.objectsVerified.Add(1)
	return nil
}
