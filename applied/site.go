package applied

import (
	"bytes"
	"fmt"
	"sync"

	"gitlab.com/stephen-fox/hookkit/memory"
)

type siteConfig struct {
	accessor    memory.Accessor
	name        string
	address     memory.Address
	replacement []byte
	ignoreRules bool
}

// newSite captures the bytes at config.address that the replacement
// will overwrite. Read errors are returned unchanged.
func newSite(config siteConfig) (*site, error) {
	if config.accessor == nil {
		return nil, fmt.Errorf("%w: accessor cannot be nil", ErrInvalidArgument)
	}

	if config.name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidArgument)
	}

	if len(config.replacement) == 0 {
		return nil, fmt.Errorf("%w: replacement bytes cannot be empty", ErrInvalidArgument)
	}

	original, err := config.accessor.ReadMemory(config.address, len(config.replacement))
	if err != nil {
		return nil, err
	}

	replacement := make([]byte, len(config.replacement))
	copy(replacement, config.replacement)

	return &site{
		accessor:    config.accessor,
		name:        config.name,
		address:     config.address,
		original:    original,
		replacement: replacement,
		ignoreRules: config.ignoreRules,
	}, nil
}

// site is the state machine shared by Patch and Detour. Only the way
// the replacement bytes are produced differs between them.
type site struct {
	accessor    memory.Accessor
	name        string
	address     memory.Address
	original    []byte
	replacement []byte
	ignoreRules bool

	mu                 sync.Mutex
	enabled            bool
	disabledDueToRules bool
	disposed           bool
}

// Identifier returns the item's name.
func (o *site) Identifier() string {
	return o.name
}

// Address returns the address of the modified memory.
func (o *site) Address() memory.Address {
	return o.address
}

// OriginalBytes returns a copy of the bytes captured at creation.
func (o *site) OriginalBytes() []byte {
	return append([]byte(nil), o.original...)
}

// ReplacementBytes returns a copy of the bytes written when enabled.
func (o *site) ReplacementBytes() []byte {
	return append([]byte(nil), o.replacement...)
}

func (o *site) IgnoresRules() bool {
	return o.ignoreRules
}

func (o *site) IsEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

func (o *site) DisabledDueToRules() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disabledDueToRules
}

func (o *site) IsDisposed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disposed
}

// Enable writes the replacement bytes. It does nothing if the item
// is already enabled, or if it was disabled due to rules.
func (o *site) Enable() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enableLocked(false)
}

// EnableDueToRules re-enables an item that was disabled due to rules.
// Otherwise it behaves like Enable.
func (o *site) EnableDueToRules() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enableLocked(true)
}

// Disable restores the original bytes.
func (o *site) Disable() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disableLocked(false)
}

// DisableDueToRules restores the original bytes and remembers that
// the item was disabled by rules, even if it was already disabled.
// It does nothing if the item ignores rules.
func (o *site) DisableDueToRules() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.disableLocked(true)
}

func (o *site) CheckIfEnabled() (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.disposed {
		return false, ErrDisposed
	}

	current, err := o.accessor.ReadMemory(o.address, len(o.replacement))
	if err != nil {
		return false, err
	}

	return bytes.Equal(current, o.replacement), nil
}

// Dispose disables the item if it is enabled and marks it disposed.
// The item is marked disposed even if restoring the original bytes
// fails, in which case the error is returned.
func (o *site) Dispose() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.disposed {
		return nil
	}

	o.disposed = true

	if o.enabled {
		err := o.write(o.original)
		if err != nil {
			return fmt.Errorf("failed to restore original bytes of %q while disposing - %w",
				o.name, err)
		}

		o.enabled = false
	}

	return nil
}

func (o *site) enableLocked(dueToRules bool) error {
	if o.disposed {
		return ErrDisposed
	}

	if dueToRules && o.disabledDueToRules {
		err := o.write(o.replacement)
		if err != nil {
			return err
		}

		o.disabledDueToRules = false
		o.enabled = true

		return nil
	}

	if o.disabledDueToRules || o.enabled {
		return nil
	}

	err := o.write(o.replacement)
	if err != nil {
		return err
	}

	o.enabled = true

	return nil
}

func (o *site) disableLocked(dueToRules bool) error {
	if o.disposed {
		return ErrDisposed
	}

	if dueToRules && o.ignoreRules {
		return nil
	}

	if !o.enabled {
		o.disabledDueToRules = dueToRules
		return nil
	}

	err := o.write(o.original)
	if err != nil {
		return err
	}

	o.enabled = false
	o.disabledDueToRules = dueToRules

	return nil
}

func (o *site) write(p []byte) error {
	return memory.WriteFull(o.accessor, o.address, p)
}
