//go:build linux

package device_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/buildbarn/bb-region-cache/pkg/device"
	"github.com/buildbarn/bb-storage/pkg/testutil"
	"github.com/ncw/directio"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestDirectIODevice(t *testing.T) {
	t.Run("UnalignedSize", func(t *testing.T) {
		_, err := device.NewDirectIODevice(filepath.Join(t.TempDir(), "cache"), 1000)
		testutil.RequireEqualStatus(t, status.Error(codes.InvalidArgument, "Device size of 1000 bytes is not a multiple of the direct I/O block size of 4096 bytes"), err)
	})

	// Not all file systems (e.g., tmpfs) support O_DIRECT.
	d, err := device.NewDirectIODevice(filepath.Join(t.TempDir(), "cache"), 4*directio.BlockSize)
	if err != nil {
		t.Skipf("Direct I/O is not supported: %s", err)
	}
	require.Equal(t, uint64(4*directio.BlockSize), d.GetSizeBytes())

	t.Run("UnalignedWrite", func(t *testing.T) {
		testutil.RequireEqualStatus(
			t,
			status.Error(codes.InvalidArgument, "Write of 4096 bytes at offset 100 is not aligned to the direct I/O block size of 4096 bytes"),
			d.Write(100, make([]byte, directio.BlockSize)))
	})

	t.Run("UnalignedMemory", func(t *testing.T) {
		// Writes from unaligned memory are permitted, as long as
		// the offset and size are aligned. They are performed
		// through an aligned copy of the data.
		p := make([]byte, 2*directio.BlockSize+1)[1:]
		copy(p[directio.BlockSize-3:], "Hello")
		require.NoError(t, d.Write(directio.BlockSize, p))

		q := make([]byte, 5)
		require.NoError(t, d.Read(2*directio.BlockSize-3, q))
		require.Equal(t, []byte("Hello"), q)

		q = make([]byte, directio.BlockSize)
		require.NoError(t, d.Read(0, q))
		require.True(t, bytes.Equal(make([]byte, directio.BlockSize), q))
	})
	t.Run("AlignedMemory", func(t *testing.T) {
		p := directio.AlignedBlock(directio.BlockSize)
		copy(p, "World")
		require.NoError(t, d.Write(3*directio.BlockSize, p))

		q := make([]byte, 5)
		require.NoError(t, d.Read(3*directio.BlockSize, q))
		require.Equal(t, []byte("World"), q)
	})

	require.NoError(t, d.Sync())
	require.NoError(t, d.Close())
}
