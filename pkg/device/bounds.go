package device

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// checkBounds returns an error if the byte range [offset, offset+length)
// does not lie within a device of a given size.
func checkBounds(operation string, offset uint64, length int, sizeBytes uint64) error {
	if end := offset + uint64(length); end < offset || end > sizeBytes {
		return status.Errorf(codes.InvalidArgument, "%s of %d bytes at offset %d exceeds device size of %d bytes", operation, length, offset, sizeBytes)
	}
	return nil
}
