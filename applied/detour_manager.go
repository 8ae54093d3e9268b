package applied

import (
	"fmt"
	"log"

	"gitlab.com/stephen-fox/hookkit/memory"
)

// DetourManagerConfig configures a DetourManager.
type DetourManagerConfig struct {
	// Accessor is shared by every Detour the manager creates.
	Accessor memory.Accessor

	// CloseAccessor makes Close close the Accessor, if it
	// implements io.Closer, after every Detour is disposed.
	CloseAccessor bool

	// Arch selects the trampoline used by every Detour.
	// It defaults to HostArch.
	Arch Arch

	// Caller is handed to each Detour for CallOriginal.
	// It is optional.
	Caller Caller

	OptLogger *log.Logger
}

// NewDetourManagerOrExit calls NewDetourManager. It calls DefaultExitFn
// if an error occurs.
func NewDetourManagerOrExit(config DetourManagerConfig) *DetourManager {
	m, err := NewDetourManager(config)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to create detour manager - %w", err))
	}
	return m
}

func NewDetourManager(config DetourManagerConfig) (*DetourManager, error) {
	if config.Accessor == nil {
		return nil, fmt.Errorf("%w: accessor cannot be nil", ErrInvalidArgument)
	}

	arch, err := defaultArch(config.Arch)
	if err != nil {
		return nil, err
	}

	config.Arch = arch

	switch config.Arch {
	case Arch32, Arch64:
	default:
		return nil, fmt.Errorf("%w: unsupported arch: %s", ErrInvalidArgument, config.Arch)
	}

	return &DetourManager{
		ComplexManager: NewComplexManager[*Detour](ManagerConfig{
			OptLogger: config.OptLogger,
			OptCloser: closerFor(config.Accessor, config.CloseAccessor),
		}),
		config: config,
	}, nil
}

// DetourManager creates and owns Detours that target one process.
type DetourManager struct {
	*ComplexManager[*Detour]
	config DetourManagerConfig
}

// Arch returns the architecture of the trampolines the manager creates.
func (o *DetourManager) Arch() Arch {
	return o.config.Arch
}

// CreateOrExit calls Create. It calls DefaultExitFn if an error occurs.
func (o *DetourManager) CreateOrExit(name string, target memory.Address, hook memory.Address, ignoreRules bool) *Detour {
	d, err := o.Create(name, target, hook, ignoreRules)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to create detour %q - %w", name, err))
	}
	return d
}

// Create creates a disabled Detour from target to hook and registers
// it, replacing any item with the same name. Nothing is registered if
// creating the Detour fails.
func (o *DetourManager) Create(name string, target memory.Address, hook memory.Address, ignoreRules bool) (*Detour, error) {
	d, err := NewDetour(DetourConfig{
		Accessor:    o.config.Accessor,
		Name:        name,
		Target:      target,
		Hook:        hook,
		Arch:        o.config.Arch,
		IgnoreRules: ignoreRules,
		Caller:      o.config.Caller,
		OptLogger:   o.config.OptLogger,
	})
	if err != nil {
		return nil, err
	}

	err = o.Add(d)
	if err != nil {
		return d, err
	}

	return d, nil
}
