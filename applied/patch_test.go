package applied

import (
	"errors"
	"testing"

	"gitlab.com/stephen-fox/hookkit/memory"
)

func TestPatch_EnableDisable(t *testing.T) {
	text := newText(t, 0x90, 0x90, 0x90)

	patch, err := NewPatch(PatchConfig{
		Accessor: text,
		Name:     "int3",
		Address:  textBase,
		Bytes:    []byte{0xCC, 0xCC, 0xCC},
	})
	if err != nil {
		t.Fatal(err)
	}

	assertMemory(t, text, textBase, []byte{0x90, 0x90, 0x90})

	if patch.IsEnabled() {
		t.Fatal("new patch should not be enabled")
	}

	err = patch.Enable()
	if err != nil {
		t.Fatal(err)
	}

	assertMemory(t, text, textBase, []byte{0xCC, 0xCC, 0xCC})

	enabled, err := patch.CheckIfEnabled()
	if err != nil {
		t.Fatal(err)
	}

	if !enabled || !patch.IsEnabled() {
		t.Fatalf("expected patch to be enabled - got IsEnabled: %t, CheckIfEnabled: %t",
			patch.IsEnabled(), enabled)
	}

	err = patch.Disable()
	if err != nil {
		t.Fatal(err)
	}

	assertMemory(t, text, textBase, patch.OriginalBytes())

	enabled, err = patch.CheckIfEnabled()
	if err != nil {
		t.Fatal(err)
	}

	if enabled || patch.IsEnabled() {
		t.Fatal("expected patch to be disabled")
	}
}

func TestPatch_Idempotent(t *testing.T) {
	text := newText(t, 0x55, 0x8B, 0xEC, 0x90)

	patch, err := NewPatch(PatchConfig{
		Accessor: text,
		Name:     "ret",
		Address:  textBase + 1,
		Bytes:    []byte{0xC3, 0x90},
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		err = patch.Enable()
		if err != nil {
			t.Fatal(err)
		}

		assertMemory(t, text, textBase, []byte{0x55, 0xC3, 0x90, 0x90})
	}

	for i := 0; i < 2; i++ {
		err = patch.Disable()
		if err != nil {
			t.Fatal(err)
		}

		assertMemory(t, text, textBase, []byte{0x55, 0x8B, 0xEC, 0x90})
	}
}

func TestPatch_IgnoreRules(t *testing.T) {
	text := newText(t, nops(4)...)

	patch, err := NewPatch(PatchConfig{
		Accessor:    text,
		Name:        "immune",
		Address:     textBase,
		Bytes:       []byte{0xEB, 0xFE},
		IgnoreRules: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	err = patch.Enable()
	if err != nil {
		t.Fatal(err)
	}

	err = patch.DisableDueToRules()
	if err != nil {
		t.Fatal(err)
	}

	if !patch.IsEnabled() || patch.DisabledDueToRules() {
		t.Fatal("patch that ignores rules was disabled due to rules")
	}

	assertMemory(t, text, textBase, []byte{0xEB, 0xFE, 0x90, 0x90})

	err = patch.Disable()
	if err != nil {
		t.Fatal(err)
	}

	err = patch.DisableDueToRules()
	if err != nil {
		t.Fatal(err)
	}

	if patch.IsEnabled() || patch.DisabledDueToRules() {
		t.Fatal("disabled patch that ignores rules changed state")
	}

	assertMemory(t, text, textBase, nops(4))
}

func TestPatch_Rules(t *testing.T) {
	text := newText(t, nops(2)...)

	patch, err := NewPatch(PatchConfig{
		Accessor: text,
		Name:     "ruled",
		Address:  textBase,
		Bytes:    []byte{0x31, 0xC0},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = patch.Enable()
	if err != nil {
		t.Fatal(err)
	}

	err = patch.DisableDueToRules()
	if err != nil {
		t.Fatal(err)
	}

	if patch.IsEnabled() || !patch.DisabledDueToRules() {
		t.Fatal("expected patch to be disabled due to rules")
	}

	assertMemory(t, text, textBase, nops(2))

	// A plain Enable does not override the rules.
	err = patch.Enable()
	if err != nil {
		t.Fatal(err)
	}

	if patch.IsEnabled() {
		t.Fatal("plain enable re-enabled a patch disabled due to rules")
	}

	assertMemory(t, text, textBase, nops(2))

	err = patch.EnableDueToRules()
	if err != nil {
		t.Fatal(err)
	}

	if !patch.IsEnabled() || patch.DisabledDueToRules() {
		t.Fatal("expected patch to be enabled after rules allowed it")
	}

	assertMemory(t, text, textBase, []byte{0x31, 0xC0})
}

func TestPatch_RulesSuppressNeverEnabled(t *testing.T) {
	text := newText(t, nops(2)...)

	patch, err := NewPatch(PatchConfig{
		Accessor: text,
		Name:     "dormant",
		Address:  textBase,
		Bytes:    []byte{0xCC, 0xCC},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = patch.DisableDueToRules()
	if err != nil {
		t.Fatal(err)
	}

	if patch.IsEnabled() || !patch.DisabledDueToRules() {
		t.Fatal("expected disabled patch to be marked as disabled due to rules")
	}

	assertMemory(t, text, textBase, nops(2))

	err = patch.Enable()
	if err != nil {
		t.Fatal(err)
	}

	if patch.IsEnabled() {
		t.Fatal("plain enable installed a patch suppressed by rules")
	}

	assertMemory(t, text, textBase, nops(2))

	err = patch.EnableDueToRules()
	if err != nil {
		t.Fatal(err)
	}

	if !patch.IsEnabled() || patch.DisabledDueToRules() {
		t.Fatal("expected patch to be enabled after rules allowed it")
	}

	assertMemory(t, text, textBase, []byte{0xCC, 0xCC})
}

func TestPatch_DisableClearsRules(t *testing.T) {
	text := newText(t, nops(1)...)

	patch, err := NewPatch(PatchConfig{
		Accessor: text,
		Name:     "x",
		Address:  textBase,
		Bytes:    []byte{0xCC},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = patch.Enable()
	if err != nil {
		t.Fatal(err)
	}

	err = patch.DisableDueToRules()
	if err != nil {
		t.Fatal(err)
	}

	err = patch.Disable()
	if err != nil {
		t.Fatal(err)
	}

	if patch.DisabledDueToRules() {
		t.Fatal("explicit disable should clear the disabled due to rules state")
	}

	err = patch.Enable()
	if err != nil {
		t.Fatal(err)
	}

	assertMemory(t, text, textBase, []byte{0xCC})
}

func TestPatch_Dispose(t *testing.T) {
	text := newText(t, nops(2)...)

	patch, err := NewPatch(PatchConfig{
		Accessor: text,
		Name:     "x",
		Address:  textBase,
		Bytes:    []byte{0xCC, 0xCC},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = patch.Enable()
	if err != nil {
		t.Fatal(err)
	}

	err = patch.Dispose()
	if err != nil {
		t.Fatal(err)
	}

	assertMemory(t, text, textBase, nops(2))

	if !patch.IsDisposed() || patch.IsEnabled() {
		t.Fatal("expected patch to be disposed and disabled")
	}

	err = patch.Dispose()
	if err != nil {
		t.Fatalf("expected second dispose to be a no-op - got %v", err)
	}

	checks := map[string]func() error{
		"Enable":            patch.Enable,
		"Disable":           patch.Disable,
		"EnableDueToRules":  patch.EnableDueToRules,
		"DisableDueToRules": patch.DisableDueToRules,
		"CheckIfEnabled": func() error {
			_, err := patch.CheckIfEnabled()
			return err
		},
	}

	for name, fn := range checks {
		err := fn()
		if !errors.Is(err, ErrDisposed) {
			t.Fatalf("%s: expected ErrDisposed - got %v", name, err)
		}
	}
}

func TestPatch_DisposeWriteFailure(t *testing.T) {
	accessor := &flakyAccessor{Buffer: newText(t, nops(1)...)}

	patch, err := NewPatch(PatchConfig{
		Accessor: accessor,
		Name:     "x",
		Address:  textBase,
		Bytes:    []byte{0xCC},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = patch.Enable()
	if err != nil {
		t.Fatal(err)
	}

	accessor.setBlockWrites(true)

	err = patch.Dispose()
	if !errors.Is(err, errWriteBlocked) {
		t.Fatalf("expected write error - got %v", err)
	}

	if !patch.IsDisposed() {
		t.Fatal("patch should be disposed even if restoring it failed")
	}
}

func TestNewPatch_ReadFailure(t *testing.T) {
	text := newText(t, nops(2)...)

	_, err := NewPatch(PatchConfig{
		Accessor: text,
		Name:     "x",
		Address:  textBase + 1,
		Bytes:    []byte{0xCC, 0xCC},
	})

	var accessErr *memory.AccessError
	if !errors.As(err, &accessErr) {
		t.Fatalf("expected *memory.AccessError - got %v", err)
	}

	if accessErr.Op != memory.OpRead {
		t.Fatalf("expected a read error - got %q", accessErr.Op)
	}
}

func TestNewPatch_InvalidArgument(t *testing.T) {
	text := newText(t, nops(2)...)

	configs := map[string]PatchConfig{
		"no accessor": {Name: "x", Address: textBase, Bytes: []byte{0xCC}},
		"no name":     {Accessor: text, Address: textBase, Bytes: []byte{0xCC}},
		"no bytes":    {Accessor: text, Name: "x", Address: textBase},
	}

	for name, config := range configs {
		_, err := NewPatch(config)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument - got %v", name, err)
		}
	}
}
