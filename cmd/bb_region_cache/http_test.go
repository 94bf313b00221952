package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/buildbarn/bb-region-cache/internal/mock"
	"github.com/buildbarn/bb-region-cache/pkg/device"
	"github.com/buildbarn/bb-region-cache/pkg/jobscheduler"
	"github.com/buildbarn/bb-region-cache/pkg/regioncache"
	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/buildbarn/bb-storage/pkg/testutil"
	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.uber.org/mock/gomock"
)

// failingResponseWriter is an http.ResponseWriter for a client that
// disconnected before the response body could be written.
type failingResponseWriter struct {
	*httptest.ResponseRecorder
}

func (failingResponseWriter) Write(p []byte) (int, error) {
	return 0, status.Error(codes.Unavailable, "Connection reset by peer")
}

func TestRouter(t *testing.T) {
	ctrl := gomock.NewController(t)

	index := newEntryIndex()
	regionManager, err := regioncache.NewRegionManager(
		device.NewInMemoryDevice(2*4096),
		jobscheduler.NewManualJobScheduler(),
		regioncache.NewFIFOEvictionPolicy(),
		index.evictRegion,
		index.cleanupRegion,
		clock.SystemClock,
		util.DefaultErrorLogger,
		&regioncache.RegionManagerConfiguration{
			NumRegions:      2,
			RegionSizeBytes: 4096,
			NumCleanRegions: 1,
			NumInMemBuffers: 1,
			FlushRetryLimit: 1,
		})
	require.NoError(t, err)
	errorLogger := mock.NewMockErrorLogger(ctrl)
	router := newRouter(regionManager, index, errorLogger)

	t.Run("Healthy", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/-/healthy", nil))
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Regions", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/regions", nil))
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response regionsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		require.Equal(t, uint32(2), response.Statistics.NumRegions)
		require.Equal(t, []regionState{
			{ID: 0, State: "Clean"},
			{ID: 1, State: "Clean"},
		}, response.Regions)
	})

	t.Run("EncodingFailure", func(t *testing.T) {
		errorLogger.EXPECT().Log(testutil.EqStatus(t, status.Error(codes.Unavailable, "Failed to encode region state: Connection reset by peer")))

		router.ServeHTTP(failingResponseWriter{ResponseRecorder: httptest.NewRecorder()}, httptest.NewRequest(http.MethodGet, "/regions", nil))
	})
}
