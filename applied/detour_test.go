package applied

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"gitlab.com/stephen-fox/hookkit/memory"
)

// recordingCaller records the memory at the called function
// when it is called.
type recordingCaller struct {
	accessor memory.Accessor
	size     int
	seen     []byte
	calls    int
	ret      uintptr
	err      error
}

func (o *recordingCaller) Call(fn memory.Address, args ...uintptr) (uintptr, error) {
	o.calls++

	b, err := o.accessor.ReadMemory(fn, o.size)
	if err != nil {
		return 0, err
	}

	o.seen = b

	var sum uintptr
	for _, arg := range args {
		sum += arg
	}

	return o.ret + sum, o.err
}

func TestDetour_OriginalBytesLen(t *testing.T) {
	checks := []struct {
		arch   Arch
		hook   memory.Address
		len    int
		offset int
	}{
		{arch: Arch32, hook: 0x10001000, len: Trampoline32Len, offset: HookOffset32},
		{arch: Arch64, hook: 0x7ff612345678, len: Trampoline64Len, offset: HookOffset64},
	}

	for _, check := range checks {
		text := newText(t, nops(32)...)

		detour, err := NewDetour(DetourConfig{
			Accessor: text,
			Name:     "hook",
			Target:   textBase,
			Hook:     check.hook,
			Arch:     check.arch,
		})
		if err != nil {
			t.Fatal(err)
		}

		if len(detour.OriginalBytes()) != check.len {
			t.Fatalf("%s: expected %d original bytes - got %d",
				check.arch, check.len, len(detour.OriginalBytes()))
		}

		maker, err := memory.PointerMakerFor(binary.LittleEndian, int(check.arch)/8)
		if err != nil {
			t.Fatal(err)
		}

		replacement := detour.ReplacementBytes()
		embedded := replacement[check.offset : check.offset+maker.PointerSize()]
		exp := maker.FromAddress(check.hook).Bytes()

		if !bytes.Equal(embedded, exp) {
			t.Fatalf("%s: expected hook bytes 0x%x at offset %d - got 0x%x",
				check.arch, exp, check.offset, embedded)
		}

		if detour.Arch() != check.arch || detour.Hook() != check.hook {
			t.Fatalf("%s: unexpected arch or hook: %s %s", check.arch, detour.Arch(), detour.Hook())
		}

		assertMemory(t, text, textBase, nops(32))
	}
}

func TestDetour_EnableDisable(t *testing.T) {
	text := newText(t, nops(8)...)

	detour, err := NewDetour(DetourConfig{
		Accessor: text,
		Name:     "hook",
		Target:   textBase + 1,
		Hook:     0xdeadbeef,
		Arch:     Arch32,
	})
	if err != nil {
		t.Fatal(err)
	}

	err = detour.Enable()
	if err != nil {
		t.Fatal(err)
	}

	assertMemory(t, text, textBase,
		[]byte{0x90, 0x68, 0xef, 0xbe, 0xad, 0xde, 0xC3, 0x90})

	err = detour.Disable()
	if err != nil {
		t.Fatal(err)
	}

	assertMemory(t, text, textBase, nops(8))
}

func TestDetour_SplitsInstruction(t *testing.T) {
	whole := newText(t, nops(Trampoline64Len)...)

	detour, err := NewDetour(DetourConfig{
		Accessor: whole,
		Name:     "whole",
		Target:   textBase,
		Hook:     0x1000,
		Arch:     Arch64,
	})
	if err != nil {
		t.Fatal(err)
	}

	if detour.SplitsInstruction() {
		t.Fatal("trampoline over whole instructions reported as splitting one")
	}

	// mov [rsp+8], rbx straddles the end of the trampoline.
	prologue := append(nops(Trampoline64Len-2), 0x48, 0x89, 0x5C, 0x24, 0x08)
	split := newText(t, prologue...)

	detour, err = NewDetour(DetourConfig{
		Accessor: split,
		Name:     "split",
		Target:   textBase,
		Hook:     0x1000,
		Arch:     Arch64,
	})
	if err != nil {
		t.Fatal(err)
	}

	if !detour.SplitsInstruction() {
		t.Fatal("expected trampoline to split an instruction")
	}
}

func TestDetour_CallOriginal(t *testing.T) {
	text := newText(t, nops(Trampoline32Len)...)
	caller := &recordingCaller{
		accessor: text,
		size:     Trampoline32Len,
		ret:      100,
	}

	detour, err := NewDetour(DetourConfig{
		Accessor: text,
		Name:     "hook",
		Target:   textBase,
		Hook:     0x1000,
		Arch:     Arch32,
		Caller:   caller,
	})
	if err != nil {
		t.Fatal(err)
	}

	err = detour.Enable()
	if err != nil {
		t.Fatal(err)
	}

	ret, err := detour.CallOriginal(1, 2)
	if err != nil {
		t.Fatal(err)
	}

	if ret != 103 {
		t.Fatalf("expected return value 103 - got %d", ret)
	}

	if !bytes.Equal(caller.seen, nops(Trampoline32Len)) {
		t.Fatalf("expected original bytes during call - got 0x%x", caller.seen)
	}

	if !detour.IsEnabled() {
		t.Fatal("detour should be enabled after calling original")
	}

	assertMemory(t, text, textBase, detour.ReplacementBytes())

	err = detour.Disable()
	if err != nil {
		t.Fatal(err)
	}

	_, err = detour.CallOriginal()
	if err != nil {
		t.Fatal(err)
	}

	if detour.IsEnabled() {
		t.Fatal("calling original re-enabled a disabled detour")
	}

	assertMemory(t, text, textBase, nops(Trampoline32Len))
}

func TestDetour_CallOriginalErrors(t *testing.T) {
	text := newText(t, nops(Trampoline32Len)...)

	detour, err := NewDetour(DetourConfig{
		Accessor: text,
		Name:     "hook",
		Target:   textBase,
		Hook:     0x1000,
		Arch:     Arch32,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = detour.CallOriginal()
	if !errors.Is(err, ErrNoCaller) {
		t.Fatalf("expected ErrNoCaller - got %v", err)
	}

	callErr := errors.New("segfault")
	caller := &recordingCaller{accessor: text, size: 1, err: callErr}

	detour, err = NewDetour(DetourConfig{
		Accessor: text,
		Name:     "hook",
		Target:   textBase,
		Hook:     0x1000,
		Arch:     Arch32,
		Caller:   caller,
	})
	if err != nil {
		t.Fatal(err)
	}

	err = detour.Enable()
	if err != nil {
		t.Fatal(err)
	}

	_, err = detour.CallOriginal()
	if !errors.Is(err, callErr) {
		t.Fatalf("expected call error - got %v", err)
	}

	if !detour.IsEnabled() {
		t.Fatal("detour should be re-enabled after a failed call")
	}

	err = detour.Dispose()
	if err != nil {
		t.Fatal(err)
	}

	_, err = detour.CallOriginal()
	if !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed - got %v", err)
	}

	if caller.calls != 1 {
		t.Fatalf("expected 1 call - got %d", caller.calls)
	}
}
