package memory

import (
	"errors"
	"fmt"
	"strconv"
)

// Address is a location in a process' virtual address space.
//
// It is always 64 bits wide so that a 32-bit host can describe
// memory in a 64-bit target.
type Address uint64

// Add returns the Address offset by n bytes. n may be negative.
func (o Address) Add(n int64) Address {
	return Address(int64(o) + n)
}

// String returns the hexadecimal representation of the Address.
func (o Address) String() string {
	return "0x" + strconv.FormatUint(uint64(o), 16)
}

// Accessor reads and writes memory in a single process' address space.
//
// Implementations must be safe for concurrent use. They are shared by
// every patch and detour that targets the same process.
type Accessor interface {
	// ReadMemory reads size bytes starting at address.
	ReadMemory(address Address, size int) ([]byte, error)

	// WriteMemory writes p starting at address, returning the
	// number of bytes written. Implementations are expected to
	// make the destination writable if needed.
	WriteMemory(address Address, p []byte) (int, error)
}

const (
	// OpRead identifies a failed read in an AccessError.
	OpRead = "read"

	// OpWrite identifies a failed write in an AccessError.
	OpWrite = "write"
)

var (
	// ErrInvalidSize is returned when a read or write of zero or
	// negative length is requested.
	ErrInvalidSize = errors.New("size must be greater than zero")

	// ErrOutOfRange is wrapped by AccessError when the requested range
	// falls outside of memory known to an Accessor.
	ErrOutOfRange = errors.New("address range is not mapped")
)

// AccessError describes a failed read or write.
type AccessError struct {
	Op      string
	Address Address
	Size    int
	Err     error
}

func (o *AccessError) Error() string {
	return fmt.Sprintf("failed to %s %d bytes at %s - %v",
		o.Op, o.Size, o.Address, o.Err)
}

func (o *AccessError) Unwrap() error {
	return o.Err
}

// ReadOrExit calls a.ReadMemory. It calls DefaultExitFn if an error occurs.
func ReadOrExit(a Accessor, address Address, size int) []byte {
	p, err := a.ReadMemory(address, size)
	if err != nil {
		DefaultExitFn(err)
	}
	return p
}

// WriteOrExit calls a.WriteMemory. It calls DefaultExitFn if an error
// occurs or if fewer than len(p) bytes are written.
func WriteOrExit(a Accessor, address Address, p []byte) {
	err := WriteFull(a, address, p)
	if err != nil {
		DefaultExitFn(err)
	}
}

// WriteFull writes all of p to address. A short write is reported
// as an *AccessError.
func WriteFull(a Accessor, address Address, p []byte) error {
	n, err := a.WriteMemory(address, p)
	if err != nil {
		return err
	}

	if n != len(p) {
		return &AccessError{
			Op:      OpWrite,
			Address: address,
			Size:    len(p),
			Err:     fmt.Errorf("short write of %d bytes", n),
		}
	}

	return nil
}
