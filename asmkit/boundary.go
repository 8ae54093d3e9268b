package asmkit

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// InstructionBoundary returns the length of the shortest run of whole
// x86 instructions at the start of code that is at least minLen bytes
// long.
//
// A detour that overwrites minLen bytes of a function's prologue leaves
// the function in a consistent state only when the overwritten bytes end
// on an instruction boundary. Callers can compare the returned length
// against minLen to find out if that is the case.
func InstructionBoundary(code []byte, bits int, minLen int) (int, error) {
	if minLen <= 0 {
		return 0, fmt.Errorf("minimum length must be greater than zero")
	}

	index := 0

	for index < minLen {
		if index >= len(code) {
			return 0, fmt.Errorf("ran out of code after %d bytes - need at least %d",
				index, minLen)
		}

		inst, err := x86asm.Decode(code[index:], bits)
		if err != nil {
			return 0, fmt.Errorf("failed to decode instruction at index %d - %w", index, err)
		}

		index += inst.Len
	}

	return index, nil
}
