package memory

import (
	"encoding/binary"
	"fmt"
)

// ReadUint32 reads a little endian uint32 at address.
func ReadUint32(a Accessor, address Address) (uint32, error) {
	p, err := a.ReadMemory(address, 4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(p), nil
}

// ReadUint64 reads a little endian uint64 at address.
func ReadUint64(a Accessor, address Address) (uint64, error) {
	p, err := a.ReadMemory(address, 8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(p), nil
}

// ReadPointer reads a pointer of pointerSize bytes (4 or 8) at address.
func ReadPointer(a Accessor, address Address, pointerSize int) (Address, error) {
	if pointerSize != 4 && pointerSize != 8 {
		return 0, fmt.Errorf("unsupported pointer size: %d", pointerSize)
	}

	p, err := a.ReadMemory(address, pointerSize)
	if err != nil {
		return 0, err
	}

	return DecodePointer(p, pointerSize)
}

// DecodePointer decodes the first pointerSize bytes of b as a little
// endian address.
func DecodePointer(b []byte, pointerSize int) (Address, error) {
	if len(b) < pointerSize {
		return 0, fmt.Errorf("need %d bytes to decode pointer - got %d",
			pointerSize, len(b))
	}

	switch pointerSize {
	case 4:
		return Address(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return Address(binary.LittleEndian.Uint64(b)), nil
	default:
		return 0, fmt.Errorf("unsupported pointer size: %d", pointerSize)
	}
}
