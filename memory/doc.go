// Package memory provides functionality for reading and writing the memory
// of a running process.
//
// The Accessor interface is the primitive that the rest of this library is
// built on. It reads and writes byte ranges at an Address in a single
// process' address space. The process package provides Accessor
// implementations for live processes, and this package provides Buffer,
// an Accessor backed by a []byte that is mapped at an arbitrary base
// address. Buffer is useful for working with memory dumps and module
// images read from disk.
//
// Failures to access memory are reported as *AccessError. Callers can
// use errors.As to recover the address and size of the failed operation:
//
//	var accessErr *memory.AccessError
//	if errors.As(err, &accessErr) {
//		log.Printf("bad address: %s", accessErr.Address)
//	}
//
// Pointers and symbol tables
//
// PointerMaker encodes addresses into the raw bytes that a target
// platform expects to find in memory, which is what a trampoline or a
// patch embeds. AddressTable organizes symbol addresses by context
// (for example, by module name).
package memory
