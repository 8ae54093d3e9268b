package applied

import (
	"fmt"
	"io"
	"log"

	"gitlab.com/stephen-fox/hookkit/memory"
)

// PatchManagerConfig configures a PatchManager.
type PatchManagerConfig struct {
	// Accessor is shared by every Patch the manager creates.
	Accessor memory.Accessor

	// CloseAccessor makes Close close the Accessor, if it
	// implements io.Closer, after every Patch is disposed.
	CloseAccessor bool

	OptLogger *log.Logger
}

// NewPatchManagerOrExit calls NewPatchManager. It calls DefaultExitFn
// if an error occurs.
func NewPatchManagerOrExit(config PatchManagerConfig) *PatchManager {
	m, err := NewPatchManager(config)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to create patch manager - %w", err))
	}
	return m
}

func NewPatchManager(config PatchManagerConfig) (*PatchManager, error) {
	if config.Accessor == nil {
		return nil, fmt.Errorf("%w: accessor cannot be nil", ErrInvalidArgument)
	}

	return &PatchManager{
		ComplexManager: NewComplexManager[*Patch](ManagerConfig{
			OptLogger: config.OptLogger,
			OptCloser: closerFor(config.Accessor, config.CloseAccessor),
		}),
		accessor: config.Accessor,
	}, nil
}

// PatchManager creates and owns Patches that target one process.
type PatchManager struct {
	*ComplexManager[*Patch]
	accessor memory.Accessor
}

// CreateOrExit calls Create. It calls DefaultExitFn if an error occurs.
func (o *PatchManager) CreateOrExit(name string, address memory.Address, b []byte, ignoreRules bool) *Patch {
	p, err := o.Create(name, address, b, ignoreRules)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to create patch %q - %w", name, err))
	}
	return p
}

// Create creates a disabled Patch and registers it, replacing any
// item with the same name. Nothing is registered if creating the
// Patch fails.
func (o *PatchManager) Create(name string, address memory.Address, b []byte, ignoreRules bool) (*Patch, error) {
	p, err := NewPatch(PatchConfig{
		Accessor:    o.accessor,
		Name:        name,
		Address:     address,
		Bytes:       b,
		IgnoreRules: ignoreRules,
	})
	if err != nil {
		return nil, err
	}

	err = o.Add(p)
	if err != nil {
		return p, err
	}

	return p, nil
}

func closerFor(accessor memory.Accessor, closeIt bool) io.Closer {
	if !closeIt {
		return nil
	}

	closer, _ := accessor.(io.Closer)
	return closer
}
