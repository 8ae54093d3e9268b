package applied

import (
	"fmt"
	"math"
	"runtime"

	"gitlab.com/stephen-fox/hookkit/iokit"
	"gitlab.com/stephen-fox/hookkit/memory"
)

// Arch is the instruction set a trampoline is generated for.
type Arch int

const (
	Arch32 Arch = 32
	Arch64 Arch = 64
)

// HostArch is the Arch of the running program. Trampolines are x86
// only, so it is zero on other architectures, and an Arch must be
// specified explicitly there.
var HostArch = hostArch(runtime.GOARCH)

func hostArch(goarch string) Arch {
	switch goarch {
	case "386":
		return Arch32
	case "amd64":
		return Arch64
	default:
		return 0
	}
}

// defaultArch returns arch, or HostArch if arch is zero.
func defaultArch(arch Arch) (Arch, error) {
	if arch != 0 {
		return arch, nil
	}

	if HostArch == 0 {
		return 0, fmt.Errorf("%w: an arch must be specified on %s hosts",
			ErrInvalidArgument, runtime.GOARCH)
	}

	return HostArch, nil
}

const (
	// Trampoline32Len is the size of a 32-bit trampoline:
	//	push <hook>
	//	ret
	Trampoline32Len = 6

	// Trampoline64Len is the size of a 64-bit trampoline:
	//	push rax
	//	mov rax, <hook>
	//	push rax
	//	mov rax, [rsp+8]
	//	ret 8
	Trampoline64Len = 20

	// HookOffset32 is the offset of the hook address in
	// a 32-bit trampoline.
	HookOffset32 = 1

	// HookOffset64 is the offset of the hook address in
	// a 64-bit trampoline.
	HookOffset64 = 3
)

func (o Arch) String() string {
	switch o {
	case Arch32:
		return "x86_32"
	case Arch64:
		return "x86_64"
	default:
		return fmt.Sprintf("Arch(%d)", int(o))
	}
}

// TrampolineOrExit calls Trampoline. It calls DefaultExitFn if an
// error occurs.
func TrampolineOrExit(arch Arch, hook memory.Address) []byte {
	b, err := Trampoline(arch, hook)
	if err != nil {
		DefaultExitFn(err)
	}
	return b
}

// Trampoline returns the machine code that transfers control to hook.
//
// The 32-bit variant pushes the hook address and returns to it.
// A push cannot carry a 64-bit immediate, so the 64-bit variant loads
// the hook address through rax, restores rax from the stack, and
// returns to the hook while discarding rax's saved copy.
func Trampoline(arch Arch, hook memory.Address) ([]byte, error) {
	switch arch {
	case Arch32:
		if hook > math.MaxUint32 {
			return nil, fmt.Errorf("%w: hook address %s does not fit in 32 bits",
				ErrInvalidArgument, hook)
		}

		return iokit.NewCodeBuilder().
			Op(0x68).
			Pointer(memory.PointerMakerForX86_32().FromAddress(hook)).
			Op(0xC3).
			Build(), nil
	case Arch64:
		return iokit.NewCodeBuilder().
			Op(0x50).
			Op(0x48, 0xB8).
			Pointer(memory.PointerMakerForX86_64().FromAddress(hook)).
			Op(0x50).
			Op(0x48, 0x8B, 0x44, 0x24, 0x08).
			Op(0xC2).Uint16(8).
			Build(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported arch: %s", ErrInvalidArgument, arch)
	}
}
