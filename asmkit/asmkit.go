// Package asmkit decodes x86 machine code.
//
// It is used to check that a detour's trampoline covers whole
// instructions, and to print trampolines in a human-readable form.
package asmkit

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Syntax is the assembly syntax that decoded instructions are
// printed in.
type Syntax string

const (
	NoSyntax    Syntax = ""
	ATTSyntax   Syntax = "att"
	GoSyntax    Syntax = "go"
	IntelSyntax Syntax = "intel"
)

func (o Syntax) formatter() (func(x86asm.Inst, uint64, x86asm.SymLookup) string, error) {
	switch o {
	case NoSyntax:
		return nil, nil
	case ATTSyntax:
		return x86asm.GNUSyntax, nil
	case GoSyntax:
		return x86asm.GoSyntax, nil
	case IntelSyntax:
		return x86asm.IntelSyntax, nil
	default:
		return nil, fmt.Errorf("unsupported syntax: %q", string(o))
	}
}

// NewDecoder returns a *Decoder for bits-bit x86 code (16, 32, or 64)
// that prints instructions in syntax.
func NewDecoder(bits int, syntax Syntax) (*Decoder, error) {
	switch bits {
	case 16, 32, 64:
	default:
		return nil, fmt.Errorf("unsupported x86 bits: %d", bits)
	}

	format, err := syntax.formatter()
	if err != nil {
		return nil, err
	}

	return &Decoder{
		bits:   bits,
		format: format,
	}, nil
}

// Decoder decodes x86 instructions.
type Decoder struct {
	bits   int
	format func(x86asm.Inst, uint64, x86asm.SymLookup) string
}

// Decode decodes the instruction at offset in code.
func (o *Decoder) Decode(code []byte, offset int) (Inst, error) {
	x86Inst, err := x86asm.Decode(code[offset:], o.bits)
	if err != nil {
		return Inst{}, fmt.Errorf("failed to decode instruction at offset %d - %w - remaining data: 0x%x",
			offset, err, code[offset:])
	}

	inst := Inst{
		Offset: offset,
		Bin:    append([]byte(nil), code[offset:offset+x86Inst.Len]...),
		X86:    x86Inst,
	}

	if o.format != nil {
		inst.Assembly = o.format(x86Inst, 0, nil)
	}

	return inst, nil
}

// Walk decodes every instruction in code, in order, calling fn for
// each of them. It stops at the first error.
func (o *Decoder) Walk(code []byte, fn func(Inst) error) error {
	for offset := 0; offset < len(code); {
		inst, err := o.Decode(code, offset)
		if err != nil {
			return err
		}

		err = fn(inst)
		if err != nil {
			return fmt.Errorf("failed to handle instruction at offset %d (%q) - %w",
				offset, inst.Assembly, err)
		}

		offset += len(inst.Bin)
	}

	return nil
}

// Inst is a decoded instruction.
type Inst struct {
	// Offset is the instruction's offset from the start of
	// the decoded code.
	Offset int

	// Bin is the instruction's machine code.
	Bin []byte

	// Assembly is empty when the Decoder was created with NoSyntax.
	Assembly string

	X86 x86asm.Inst
}
