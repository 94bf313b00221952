//go:build linux

package device

import (
	"os"
	"unsafe"

	"github.com/buildbarn/bb-storage/pkg/util"
	"github.com/ncw/directio"

	"golang.org/x/sys/unix"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type directIODevice struct {
	file      *os.File
	sizeBytes uint64
}

// NewDirectIODevice creates a Device that is backed by a file that is
// opened with O_DIRECT, bypassing the page cache. Space for the file is
// allocated upfront, so that flushing regions does not fail due to the
// file system running out of space.
//
// Writes must be aligned to directio.BlockSize, both in offset and
// length. Reads may be unaligned, as they are performed through an
// aligned bounce buffer.
func NewDirectIODevice(path string, sizeBytes uint64) (Device, error) {
	if sizeBytes%directio.BlockSize != 0 {
		return nil, status.Errorf(codes.InvalidArgument, "Device size of %d bytes is not a multiple of the direct I/O block size of %d bytes", sizeBytes, directio.BlockSize)
	}
	f, err := directio.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, util.StatusWrapf(err, "Failed to open %#v", path)
	}
	if err := unix.Fallocate(int(f.Fd()), 0, 0, int64(sizeBytes)); err != nil {
		f.Close()
		return nil, util.StatusWrapf(err, "Failed to allocate %d bytes for %#v", sizeBytes, path)
	}
	return &directIODevice{
		file:      f,
		sizeBytes: sizeBytes,
	}, nil
}

func alignDown(v uint64) uint64 {
	return v &^ (directio.BlockSize - 1)
}

func alignUp(v uint64) uint64 {
	return alignDown(v + directio.BlockSize - 1)
}

// isAligned returns whether the memory backing a byte slice starts at
// an address that permits it to be passed to O_DIRECT system calls.
func isAligned(p []byte) bool {
	return uintptr(unsafe.Pointer(unsafe.SliceData(p)))&(directio.AlignSize-1) == 0
}

func (d *directIODevice) Read(offset uint64, p []byte) error {
	if err := checkBounds("Read", offset, len(p), d.sizeBytes); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	start := alignDown(offset)
	end := alignUp(offset + uint64(len(p)))
	block := directio.AlignedBlock(int(end - start))
	if n, err := d.file.ReadAt(block, int64(start)); err != nil {
		return util.StatusWrapf(err, "Failed to read %d bytes at offset %d", len(block), start)
	} else if n != len(block) {
		return status.Errorf(codes.Internal, "Short read of %d bytes at offset %d: got %d bytes", len(block), start, n)
	}
	copy(p, block[offset-start:])
	return nil
}

func (d *directIODevice) Write(offset uint64, p []byte) error {
	if err := checkBounds("Write", offset, len(p), d.sizeBytes); err != nil {
		return err
	}
	if offset%directio.BlockSize != 0 || len(p)%directio.BlockSize != 0 {
		return status.Errorf(codes.InvalidArgument, "Write of %d bytes at offset %d is not aligned to the direct I/O block size of %d bytes", len(p), offset, directio.BlockSize)
	}
	if len(p) == 0 {
		return nil
	}
	block := p
	if !isAligned(p) {
		block = directio.AlignedBlock(len(p))
		copy(block, p)
	}
	if n, err := d.file.WriteAt(block, int64(offset)); err != nil {
		return util.StatusWrapf(err, "Failed to write %d bytes at offset %d", len(p), offset)
	} else if n != len(block) {
		return status.Errorf(codes.Internal, "Short write of %d bytes at offset %d: wrote %d bytes", len(p), offset, n)
	}
	if err := unix.Fdatasync(int(d.file.Fd())); err != nil {
		return util.StatusWrap(err, "Failed to synchronize written data")
	}
	return nil
}

func (d *directIODevice) GetSizeBytes() uint64 {
	return d.sizeBytes
}

func (d *directIODevice) Sync() error {
	if err := d.file.Sync(); err != nil {
		return util.StatusWrap(err, "Failed to synchronize file")
	}
	return nil
}

func (d *directIODevice) Close() error {
	if err := d.file.Close(); err != nil {
		return util.StatusWrap(err, "Failed to close file")
	}
	return nil
}
