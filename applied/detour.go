package applied

import (
	"fmt"
	"log"

	"gitlab.com/stephen-fox/hookkit/asmkit"
	"gitlab.com/stephen-fox/hookkit/memory"
	"go.uber.org/multierr"
)

// DetourConfig configures a Detour.
type DetourConfig struct {
	Accessor memory.Accessor

	// Name identifies the Detour in a Manager.
	Name string

	// Target is the address of the function to redirect.
	Target memory.Address

	// Hook is the address that Target is redirected to.
	Hook memory.Address

	// Arch selects the trampoline. It defaults to HostArch.
	Arch Arch

	// IgnoreRules makes the Detour immune to DisableDueToRules.
	IgnoreRules bool

	// Caller is used by CallOriginal. It is optional.
	Caller Caller

	// OptLogger, when non-nil, receives warnings about the
	// target's prologue.
	OptLogger *log.Logger
}

// NewDetour reads the bytes at config.Target that the trampoline will
// overwrite. It does not modify memory.
func NewDetour(config DetourConfig) (*Detour, error) {
	arch, err := defaultArch(config.Arch)
	if err != nil {
		return nil, err
	}

	config.Arch = arch

	trampoline, err := Trampoline(config.Arch, config.Hook)
	if err != nil {
		return nil, err
	}

	s, err := newSite(siteConfig{
		accessor:    config.Accessor,
		name:        config.Name,
		address:     config.Target,
		replacement: trampoline,
		ignoreRules: config.IgnoreRules,
	})
	if err != nil {
		return nil, err
	}

	d := &Detour{
		site:   s,
		hook:   config.Hook,
		arch:   config.Arch,
		caller: config.Caller,
	}

	boundary, err := asmkit.InstructionBoundary(s.original, int(config.Arch), len(s.original))
	if err != nil || boundary != len(s.original) {
		d.splitsInstruction = true

		if config.OptLogger != nil {
			config.OptLogger.Printf("warning: %d byte trampoline for %q at %s does not end on an instruction boundary (prologue: 0x%x)",
				len(s.original), config.Name, config.Target, s.original)
		}
	}

	return d, nil
}

// Detour redirects a function to a hook by overwriting the start of
// the function with a trampoline.
type Detour struct {
	*site
	hook              memory.Address
	arch              Arch
	caller            Caller
	splitsInstruction bool
}

// Hook returns the address that the target is redirected to.
func (o *Detour) Hook() memory.Address {
	return o.hook
}

func (o *Detour) Arch() Arch {
	return o.arch
}

// SplitsInstruction reports whether the trampoline overwrites only part
// of an instruction in the target's prologue. Calling the original
// function with CallOriginal is unaffected, but code that jumps into
// the middle of the overwritten bytes is not.
func (o *Detour) SplitsInstruction() bool {
	return o.splitsInstruction
}

// CallOriginal restores the original function, calls it with args,
// and re-installs the trampoline if it was installed before.
//
// Other threads that execute the target while the original function
// is restored are not redirected to the hook.
func (o *Detour) CallOriginal(args ...uintptr) (uintptr, error) {
	if o.caller == nil {
		return 0, ErrNoCaller
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.disposed {
		return 0, ErrDisposed
	}

	wasEnabled := o.enabled

	if wasEnabled {
		err := o.write(o.original)
		if err != nil {
			return 0, fmt.Errorf("failed to restore original function - %w", err)
		}

		o.enabled = false
	}

	ret, callErr := o.caller.Call(o.address, args...)
	if callErr != nil {
		callErr = fmt.Errorf("failed to call original function at %s - %w", o.address, callErr)
	}

	if wasEnabled {
		err := o.write(o.replacement)
		if err != nil {
			return ret, multierr.Append(callErr,
				fmt.Errorf("failed to re-install trampoline - %w", err))
		}

		o.enabled = true
	}

	return ret, callErr
}
