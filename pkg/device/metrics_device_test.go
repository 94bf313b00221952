package device_test

import (
	"testing"

	"github.com/buildbarn/bb-region-cache/internal/mock"
	"github.com/buildbarn/bb-region-cache/pkg/device"
	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/buildbarn/bb-storage/pkg/testutil"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.uber.org/mock/gomock"
)

func TestMetricsDevice(t *testing.T) {
	ctrl := gomock.NewController(t)

	base := mock.NewMockDevice(ctrl)
	d := device.NewMetricsDevice(base, clock.SystemClock, "Test")

	t.Run("GetSizeBytes", func(t *testing.T) {
		base.EXPECT().GetSizeBytes().Return(uint64(1234))
		require.Equal(t, uint64(1234), d.GetSizeBytes())
	})

	t.Run("Read", func(t *testing.T) {
		base.EXPECT().Read(uint64(42), gomock.Len(5)).DoAndReturn(func(offset uint64, p []byte) error {
			copy(p, "Hello")
			return nil
		})

		p := make([]byte, 5)
		require.NoError(t, d.Read(42, p))
		require.Equal(t, []byte("Hello"), p)
	})

	t.Run("WriteFailure", func(t *testing.T) {
		base.EXPECT().Write(uint64(42), []byte("Hello")).Return(status.Error(codes.Internal, "Disk failure"))

		testutil.RequireEqualStatus(t, status.Error(codes.Internal, "Disk failure"), d.Write(42, []byte("Hello")))
	})

	t.Run("SyncClose", func(t *testing.T) {
		gomock.InOrder(
			base.EXPECT().Sync(),
			base.EXPECT().Close().Return(status.Error(codes.Internal, "Device busy")))

		require.NoError(t, d.Sync())
		testutil.RequireEqualStatus(t, status.Error(codes.Internal, "Device busy"), d.Close())
	})
}
