package device

// Device is a fixed-size, byte addressable store on which regions are
// persisted. Implementations must permit concurrent calls that operate
// on disjoint byte ranges.
//
// Every call either transfers all of the provided bytes or returns an
// error. Partial transfers are never reported as success.
type Device interface {
	Read(offset uint64, p []byte) error
	Write(offset uint64, p []byte) error
	GetSizeBytes() uint64

	// Sync forces previously written data to stable storage.
	Sync() error
	Close() error
}
