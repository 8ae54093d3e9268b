// Package iokit assembles binary sequences, such as machine code that
// is written over a function by a detour.
package iokit

import (
	"bytes"
	"encoding/binary"
)

// NewCodeBuilder returns an empty CodeBuilder that writes integers
// in little endian byte order.
func NewCodeBuilder() *CodeBuilder {
	return &CodeBuilder{
		bo: binary.LittleEndian,
	}
}

// CodeBuilder builds a []byte by implementing the "builder pattern".
type CodeBuilder struct {
	buf bytes.Buffer
	bo  binary.ByteOrder
}

// SetEndianness sets the byte order of integers.
func (o *CodeBuilder) SetEndianness(order binary.ByteOrder) *CodeBuilder {
	o.bo = order

	return o
}

// Op writes an opcode or any other literal bytes.
func (o *CodeBuilder) Op(b ...byte) *CodeBuilder {
	o.buf.Write(b)

	return o
}

func (o *CodeBuilder) Uint16(u uint16) *CodeBuilder {
	b := make([]byte, 2)
	o.bo.PutUint16(b, u)
	return o.Op(b...)
}

func (o *CodeBuilder) Uint32(u uint32) *CodeBuilder {
	b := make([]byte, 4)
	o.bo.PutUint32(b, u)
	return o.Op(b...)
}

func (o *CodeBuilder) Uint64(u uint64) *CodeBuilder {
	b := make([]byte, 8)
	o.bo.PutUint64(b, u)
	return o.Op(b...)
}

// Byter abstracts types that can be represented as a []byte,
// such as memory.Pointer.
type Byter interface {
	Bytes() []byte
}

// Pointer writes an encoded pointer. Its byte order is not changed.
func (o *CodeBuilder) Pointer(pointer Byter) *CodeBuilder {
	return o.Op(pointer.Bytes()...)
}

// Repeat writes b count times.
func (o *CodeBuilder) Repeat(b byte, count int) *CodeBuilder {
	for i := 0; i < count; i++ {
		o.buf.WriteByte(b)
	}

	return o
}

// Len returns the number of bytes written so far, which is the offset
// of whatever is written next.
func (o *CodeBuilder) Len() int {
	return o.buf.Len()
}

// Build returns a copy of the bytes written so far.
func (o *CodeBuilder) Build() []byte {
	return append([]byte(nil), o.buf.Bytes()...)
}
