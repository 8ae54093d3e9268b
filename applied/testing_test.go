package applied

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"gitlab.com/stephen-fox/hookkit/memory"
)

const textBase = memory.Address(0x401000)

var errWriteBlocked = errors.New("write blocked")

func newText(t *testing.T, data ...byte) *memory.Buffer {
	t.Helper()

	return memory.NewBuffer(textBase, data)
}

func nops(n int) []byte {
	return bytes.Repeat([]byte{0x90}, n)
}

func assertMemory(t *testing.T, a memory.Accessor, address memory.Address, exp []byte) {
	t.Helper()

	current, err := a.ReadMemory(address, len(exp))
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(current, exp) {
		t.Fatalf("expected memory at %s to be 0x%x - got 0x%x", address, exp, current)
	}
}

// flakyAccessor fails writes while blockWrites is set.
type flakyAccessor struct {
	*memory.Buffer

	mu          sync.Mutex
	blockWrites bool
	closed      int
}

func (o *flakyAccessor) setBlockWrites(block bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.blockWrites = block
}

func (o *flakyAccessor) WriteMemory(address memory.Address, p []byte) (int, error) {
	o.mu.Lock()
	blocked := o.blockWrites
	o.mu.Unlock()

	if blocked {
		return 0, &memory.AccessError{
			Op:      memory.OpWrite,
			Address: address,
			Size:    len(p),
			Err:     errWriteBlocked,
		}
	}

	return o.Buffer.WriteMemory(address, p)
}

func (o *flakyAccessor) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}
