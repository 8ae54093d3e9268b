package process

import (
	"bytes"
	"math"
	"testing"
	"time"

	"gitlab.com/stephen-fox/hookkit/memory"
)

func TestEncodeParam(t *testing.T) {
	arg, err := encodeParam(IntParam(-1), 4)
	if err != nil {
		t.Fatal(err)
	}

	if arg.value != 0xffffffff || arg.data != nil {
		t.Fatalf("expected 0xffffffff - got %+v", arg)
	}

	arg, err = encodeParam(IntParam(-1), 8)
	if err != nil {
		t.Fatal(err)
	}

	if arg.value != 0xffffffffffffffff {
		t.Fatalf("expected 0xffffffffffffffff - got 0x%x", arg.value)
	}

	arg, err = encodeParam(PointerParam(0x7ff612345678), 8)
	if err != nil {
		t.Fatal(err)
	}

	if arg.value != 0x7ff612345678 {
		t.Fatalf("expected 0x7ff612345678 - got 0x%x", arg.value)
	}

	arg, err = encodeParam(StringParam("user32.dll"), 8)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(arg.data, []byte("user32.dll\x00")) {
		t.Fatalf("expected null-terminated string - got %q", arg.data)
	}

	arg, err = encodeParam(nil, 8)
	if err != nil {
		t.Fatal(err)
	}

	if arg.value != 0 || arg.data != nil {
		t.Fatalf("expected zero argument - got %+v", arg)
	}
}

func TestEncodeParam_Invalid(t *testing.T) {
	params := []ThreadParam{
		IntParam(0x100000000),
		PointerParam(memory.Address(0x100000000)),
		StringParam("a\x00b"),
	}

	for _, param := range params {
		_, err := encodeParam(param, 4)
		if err == nil {
			t.Fatalf("expected an error for %#v", param)
		}
	}
}

func TestProcess_ProcAddressCached(t *testing.T) {
	p := newProcess(1234, false, 8, &osHandle{})

	p.procs.AddSymbolInContext("VirtualAlloc", 0x7ffb1000, "kernel32.dll")

	addr, err := p.ProcAddress("KERNEL32.dll", "VirtualAlloc")
	if err != nil {
		t.Fatal(err)
	}

	if addr != 0x7ffb1000 {
		t.Fatalf("expected 0x7ffb1000 - got %s", addr)
	}
}

func TestTimeoutMillis(t *testing.T) {
	tests := map[time.Duration]uint32{
		time.Nanosecond:                   1,
		999 * time.Microsecond:            1,
		time.Millisecond:                  1,
		1500 * time.Microsecond:           2,
		3 * time.Second:                   3000,
		math.MaxUint32 * time.Millisecond: math.MaxUint32 - 1,
		time.Duration(math.MaxInt64):      math.MaxUint32 - 1,
	}

	for timeout, exp := range tests {
		ms := timeoutMillis(timeout)
		if ms != exp {
			t.Fatalf("%s: expected %d - got %d", timeout, exp, ms)
		}
	}
}
