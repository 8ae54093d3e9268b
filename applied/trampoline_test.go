package applied

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"gitlab.com/stephen-fox/hookkit/memory"
)

func TestTrampoline_32(t *testing.T) {
	b, err := Trampoline(Arch32, 0xdeadbeef)
	if err != nil {
		t.Fatal(err)
	}

	exp := []byte{0x68, 0xef, 0xbe, 0xad, 0xde, 0xC3}
	if !bytes.Equal(b, exp) {
		t.Fatalf("expected 0x%x - got 0x%x", exp, b)
	}

	if len(b) != Trampoline32Len {
		t.Fatalf("expected %d bytes - got %d", Trampoline32Len, len(b))
	}

	hook := binary.LittleEndian.Uint32(b[HookOffset32:])
	if hook != 0xdeadbeef {
		t.Fatalf("expected hook 0xdeadbeef - got 0x%x", hook)
	}
}

func TestTrampoline_64(t *testing.T) {
	b, err := Trampoline(Arch64, 0x7ff612345678)
	if err != nil {
		t.Fatal(err)
	}

	if len(b) != Trampoline64Len {
		t.Fatalf("expected %d bytes - got %d", Trampoline64Len, len(b))
	}

	hook := binary.LittleEndian.Uint64(b[HookOffset64:])
	if hook != 0x7ff612345678 {
		t.Fatalf("expected hook 0x7ff612345678 - got 0x%x", hook)
	}

	if !bytes.Equal(b[:HookOffset64], []byte{0x50, 0x48, 0xB8}) {
		t.Fatalf("unexpected prefix: 0x%x", b[:HookOffset64])
	}

	if !bytes.HasSuffix(b, []byte{0xC2, 0x08, 0x00}) {
		t.Fatalf("expected trampoline to end with ret 8 - got 0x%x", b)
	}
}

func TestTrampoline_Invalid(t *testing.T) {
	_, err := Trampoline(Arch32, 0x100000000)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for 64-bit hook in 32-bit trampoline - got %v", err)
	}

	_, err = Trampoline(Arch(16), 0x1000)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for 16-bit arch - got %v", err)
	}
}

func TestHostArch(t *testing.T) {
	tests := map[string]Arch{
		"386":   Arch32,
		"amd64": Arch64,
		"arm64": 0,
		"riscv": 0,
	}

	for goarch, exp := range tests {
		arch := hostArch(goarch)
		if arch != exp {
			t.Fatalf("%s: expected %s - got %s", goarch, exp, arch)
		}
	}

	if HostArch == 0 {
		_, err := NewDetour(DetourConfig{Accessor: newText(t, nops(32)...), Name: "x", Target: textBase})
		if !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument without an arch - got %v", err)
		}

		return
	}

	_, err := Trampoline(HostArch, memory.Address(0x1000))
	if err != nil {
		t.Fatal(err)
	}
}
