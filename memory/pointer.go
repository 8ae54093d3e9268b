package memory

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// PointerMakerForX86_32 returns a PointerMaker for 32-bit x86 targets.
func PointerMakerForX86_32() PointerMaker {
	return PointerMaker{
		byteOrder: binary.LittleEndian,
		ptrSize:   4,
	}
}

// PointerMakerForX86_64 returns a PointerMaker for 64-bit x86 targets.
func PointerMakerForX86_64() PointerMaker {
	return PointerMaker{
		byteOrder: binary.LittleEndian,
		ptrSize:   8,
	}
}

// PointerMakerForOrExit calls PointerMakerFor. It calls DefaultExitFn
// if an error occurs.
func PointerMakerForOrExit(endianness binary.ByteOrder, pointerSize int) PointerMaker {
	pm, err := PointerMakerFor(endianness, pointerSize)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to create pointer maker - %w", err))
	}
	return pm
}

// PointerMakerFor returns a PointerMaker for the specified byte order
// and pointer size in bytes.
func PointerMakerFor(endianness binary.ByteOrder, pointerSize int) (PointerMaker, error) {
	if endianness == nil {
		return PointerMaker{}, fmt.Errorf("endianness cannot be nil")
	}

	switch pointerSize {
	case 4, 8:
	default:
		return PointerMaker{}, fmt.Errorf("unsupported pointer size: %d", pointerSize)
	}

	return PointerMaker{
		byteOrder: endianness,
		ptrSize:   pointerSize,
	}, nil
}

// PointerMaker creates Pointers for a particular platform.
type PointerMaker struct {
	byteOrder binary.ByteOrder
	ptrSize   int
}

// PointerSize returns the size of the pointers it makes in bytes.
func (o PointerMaker) PointerSize() int {
	return o.ptrSize
}

// FromAddress encodes address. Bits that do not fit in the pointer
// size are discarded.
func (o PointerMaker) FromAddress(address Address) Pointer {
	out := make([]byte, o.ptrSize)

	switch o.ptrSize {
	case 4:
		o.byteOrder.PutUint32(out, uint32(address))
	case 8:
		o.byteOrder.PutUint64(out, uint64(address))
	default:
		panic(fmt.Sprintf("unsupported pointer size: %d", o.ptrSize))
	}

	return Pointer{
		bytes: out,
		order: o.byteOrder,
	}
}

// ParseOrExit calls Parse. It calls DefaultExitFn if an error occurs.
func (o PointerMaker) ParseOrExit(str string) Pointer {
	p, err := o.Parse(str)
	if err != nil {
		DefaultExitFn(err)
	}
	return p
}

// Parse parses a hexadecimal address string, with or without
// a "0x" prefix.
func (o PointerMaker) Parse(str string) (Pointer, error) {
	noPrefix := strings.TrimPrefix(strings.ToLower(str), "0x")
	if noPrefix == "" {
		return Pointer{}, fmt.Errorf("address string cannot be empty")
	}

	u, err := strconv.ParseUint(noPrefix, 16, o.ptrSize*8)
	if err != nil {
		return Pointer{}, fmt.Errorf("failed to parse address %q - %w", str, err)
	}

	return o.FromAddress(Address(u)), nil
}

// Pointer is an address encoded in the byte order of a target platform.
type Pointer struct {
	bytes []byte
	order binary.ByteOrder
}

// Bytes returns the encoded pointer.
func (o Pointer) Bytes() []byte {
	return o.bytes
}

// Address decodes the pointer.
func (o Pointer) Address() Address {
	switch len(o.bytes) {
	case 4:
		return Address(o.order.Uint32(o.bytes))
	case 8:
		return Address(o.order.Uint64(o.bytes))
	default:
		return 0
	}
}

// HexString returns the pointer's value as a "0x"-prefixed hex string.
func (o Pointer) HexString() string {
	return fmt.Sprintf("0x%0*x", len(o.bytes)*2, uint64(o.Address()))
}
