//go:build !linux

package device

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewDirectIODevice creates a Device that is backed by a file that is
// opened with O_DIRECT. This is only supported on Linux.
func NewDirectIODevice(path string, sizeBytes uint64) (Device, error) {
	return nil, status.Error(codes.Unimplemented, "Direct I/O devices are only supported on Linux")
}
