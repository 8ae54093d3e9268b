package memory

import (
	"sync"
)

// NewBuffer returns a *Buffer that maps data at base. The Buffer takes
// ownership of data; callers should not modify it afterwards.
func NewBuffer(base Address, data []byte) *Buffer {
	return &Buffer{
		base: base,
		data: data,
	}
}

// Buffer is an Accessor over a []byte mapped at a base address.
//
// Reads and writes that are not fully contained in the mapping fail
// with an *AccessError wrapping ErrOutOfRange.
type Buffer struct {
	mu   sync.RWMutex
	base Address
	data []byte
}

// Base returns the address that the first byte is mapped at.
func (o *Buffer) Base() Address {
	return o.base
}

// Size returns the number of mapped bytes.
func (o *Buffer) Size() int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return len(o.data)
}

// Bytes returns a copy of the mapped bytes.
func (o *Buffer) Bytes() []byte {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cp := make([]byte, len(o.data))
	copy(cp, o.data)

	return cp
}

func (o *Buffer) ReadMemory(address Address, size int) ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	start, err := o.span(OpRead, address, size)
	if err != nil {
		return nil, err
	}

	p := make([]byte, size)
	copy(p, o.data[start:start+size])

	return p, nil
}

func (o *Buffer) WriteMemory(address Address, p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start, err := o.span(OpWrite, address, len(p))
	if err != nil {
		return 0, err
	}

	return copy(o.data[start:], p), nil
}

func (o *Buffer) span(op string, address Address, size int) (int, error) {
	if size <= 0 {
		return 0, &AccessError{
			Op:      op,
			Address: address,
			Size:    size,
			Err:     ErrInvalidSize,
		}
	}

	if address < o.base || uint64(address-o.base)+uint64(size) > uint64(len(o.data)) {
		return 0, &AccessError{
			Op:      op,
			Address: address,
			Size:    size,
			Err:     ErrOutOfRange,
		}
	}

	return int(address - o.base), nil
}
