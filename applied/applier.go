package applied

import (
	"errors"

	"gitlab.com/stephen-fox/hookkit/memory"
)

var (
	// ErrDisposed is returned by operations on an item that was disposed.
	ErrDisposed = errors.New("item has been disposed")

	// ErrInvalidArgument is returned when an item or manager is
	// created with an invalid configuration.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrClosed is returned when adding an item to a closed Manager.
	ErrClosed = errors.New("manager is closed")

	// ErrNoCaller is returned by Detour.CallOriginal when the Detour
	// was created without a Caller.
	ErrNoCaller = errors.New("detour has no caller")
)

// Applier is a reversible modification of memory.
type Applier interface {
	// Identifier returns the name that the item is registered under.
	Identifier() string

	IsEnabled() bool

	IsDisposed() bool

	// Enable writes the modification to memory.
	Enable() error

	// Disable restores the original memory.
	Disable() error

	// Dispose disables the item if needed and marks it disposed.
	// Calling Dispose more than once is a no-op.
	Dispose() error
}

// ComplexApplier is an Applier that can also be disabled and enabled
// by rules. Refer to the package documentation for more information.
type ComplexApplier interface {
	Applier

	EnableDueToRules() error

	DisableDueToRules() error

	DisabledDueToRules() bool

	IgnoresRules() bool

	// CheckIfEnabled reads memory to determine whether the
	// modification is currently present, regardless of what
	// IsEnabled reports.
	CheckIfEnabled() (bool, error)
}

// Caller calls a function at an address in a process.
type Caller interface {
	Call(fn memory.Address, args ...uintptr) (uintptr, error)
}
