package regioncache

import (
	"bytes"
)

// Buffer is an owned, resizable sequence of bytes.
type Buffer struct {
	data []byte
}

// NewBuffer creates a zero-filled Buffer of a given size.
func NewBuffer(sizeBytes int) *Buffer {
	return &Buffer{data: make([]byte, sizeBytes)}
}

// NewBufferFromBytes creates a Buffer that holds a copy of the
// provided bytes.
func NewBufferFromBytes(p []byte) *Buffer {
	return &Buffer{data: append([]byte(nil), p...)}
}

// Size returns the number of bytes stored in the buffer.
func (b *Buffer) Size() int {
	return len(b.data)
}

// Data returns the contents of the buffer. The slice may be modified
// by the caller, but is invalidated by Resize().
func (b *Buffer) Data() []byte {
	return b.data
}

// View returns a BufferView that refers to the contents of the
// buffer without copying them.
func (b *Buffer) View() BufferView {
	return BufferView{data: b.data}
}

// Copy returns a Buffer that holds a copy of the contents.
func (b *Buffer) Copy() *Buffer {
	return NewBufferFromBytes(b.data)
}

// Resize changes the size of the buffer. Existing contents up to the
// new size are preserved. Growing the buffer zero-fills new bytes.
func (b *Buffer) Resize(sizeBytes int) {
	if sizeBytes <= cap(b.data) {
		oldSize := len(b.data)
		b.data = b.data[:sizeBytes]
		if sizeBytes > oldSize {
			clear(b.data[oldSize:])
		}
		return
	}
	data := make([]byte, sizeBytes)
	copy(data, b.data)
	b.data = data
}

// BufferView is a non-owning reference to a sequence of bytes. The
// zero value is a null view.
type BufferView struct {
	data []byte
}

// NewBufferView creates a BufferView that refers to the provided
// slice.
func NewBufferView(p []byte) BufferView {
	return BufferView{data: p}
}

// IsNull returns whether the view refers to no storage at all.
func (v BufferView) IsNull() bool {
	return v.data == nil
}

// Size returns the number of bytes covered by the view.
func (v BufferView) Size() int {
	return len(v.data)
}

// Data returns the bytes covered by the view. The slice must not be
// modified.
func (v BufferView) Data() []byte {
	return v.data
}

// Slice returns a view of a subrange of the current view.
func (v BufferView) Slice(offset, sizeBytes int) BufferView {
	return BufferView{data: v.data[offset : offset+sizeBytes]}
}

// Copy returns a Buffer that holds a copy of the bytes covered by the
// view.
func (v BufferView) Copy() *Buffer {
	return NewBufferFromBytes(v.data)
}

// Equal returns whether two views cover identical bytes.
func (v BufferView) Equal(other BufferView) bool {
	return bytes.Equal(v.data, other.data)
}
