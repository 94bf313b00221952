package device

import (
	"sync"
)

type inMemoryDevice struct {
	lock sync.RWMutex
	data []byte
}

// NewInMemoryDevice creates a Device that is backed by a byte slice.
// Its contents are lost when the process terminates. This
// implementation is primarily intended for testing and for running
// without dedicated storage.
func NewInMemoryDevice(sizeBytes uint64) Device {
	return &inMemoryDevice{
		data: make([]byte, sizeBytes),
	}
}

func (d *inMemoryDevice) Read(offset uint64, p []byte) error {
	if err := checkBounds("Read", offset, len(p), uint64(len(d.data))); err != nil {
		return err
	}
	d.lock.RLock()
	copy(p, d.data[offset:])
	d.lock.RUnlock()
	return nil
}

func (d *inMemoryDevice) Write(offset uint64, p []byte) error {
	if err := checkBounds("Write", offset, len(p), uint64(len(d.data))); err != nil {
		return err
	}
	d.lock.Lock()
	copy(d.data[offset:], p)
	d.lock.Unlock()
	return nil
}

func (d *inMemoryDevice) GetSizeBytes() uint64 {
	return uint64(len(d.data))
}

func (d *inMemoryDevice) Sync() error {
	return nil
}

func (d *inMemoryDevice) Close() error {
	return nil
}
