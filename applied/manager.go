package applied

import (
	"fmt"
	"io"
	"log"
	"sort"
	"sync"

	"go.uber.org/multierr"
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// OptLogger, when non-nil, logs replaced items and
	// disposal failures.
	OptLogger *log.Logger

	// OptCloser, when non-nil, is closed by Close after every
	// item has been disposed. It is typically the Accessor that
	// the items share.
	OptCloser io.Closer
}

// NewManager returns an empty *Manager.
func NewManager[T Applier](config ManagerConfig) *Manager[T] {
	return &Manager[T]{
		config: config,
		items:  make(map[string]T),
	}
}

// Manager is a registry of items keyed by their Identifier.
// It owns the items added to it.
type Manager[T Applier] struct {
	config ManagerConfig
	mu     sync.RWMutex
	items  map[string]T
	closed bool
}

// Add registers item. If an item with the same name is already
// registered, it is disposed and replaced. An error disposing the
// replaced item is returned, but item is registered regardless.
func (o *Manager[T]) Add(item T) error {
	name := item.Identifier()
	if name == "" {
		return fmt.Errorf("%w: item name cannot be empty", ErrInvalidArgument)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}

	var err error

	existing, hasIt := o.items[name]
	if hasIt && any(existing) == any(item) {
		return nil
	}

	if hasIt {
		o.logf("replacing existing item %q", name)

		err = existing.Dispose()
		if err != nil {
			err = fmt.Errorf("failed to dispose replaced item %q - %w", name, err)
			o.logf("%s", err)
		}
	}

	o.items[name] = item

	return err
}

// Get returns the item registered under name.
func (o *Manager[T]) Get(name string) (T, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	item, hasIt := o.items[name]
	return item, hasIt
}

// Len returns the number of registered items.
func (o *Manager[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return len(o.items)
}

// Names returns the names of the registered items in sorted order.
func (o *Manager[T]) Names() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.sortedNamesLocked()
}

// Items returns the registered items sorted by name.
func (o *Manager[T]) Items() []T {
	o.mu.RLock()
	defer o.mu.RUnlock()

	items := make([]T, 0, len(o.items))
	for _, name := range o.sortedNamesLocked() {
		items = append(items, o.items[name])
	}

	return items
}

// Remove disposes and unregisters the item registered under name.
// It does nothing if there is no such item. The item is unregistered
// even if disposing it fails.
func (o *Manager[T]) Remove(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	item, hasIt := o.items[name]
	if !hasIt {
		return nil
	}

	delete(o.items, name)

	err := item.Dispose()
	if err != nil {
		o.logf("failed to dispose %q - %s", name, err)
		return err
	}

	return nil
}

// RemoveAll disposes and unregisters every item. Failing to dispose
// an item does not stop the others from being disposed; all failures
// are returned together.
func (o *Manager[T]) RemoveAll() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.removeAllLocked()
}

func (o *Manager[T]) removeAllLocked() error {
	var result error

	for _, name := range o.sortedNamesLocked() {
		err := o.items[name].Dispose()
		if err != nil {
			o.logf("failed to dispose %q - %s", name, err)
			result = multierr.Append(result, err)
		}

		delete(o.items, name)
	}

	return result
}

// Enable enables the item registered under name. It does nothing if
// there is no such item.
func (o *Manager[T]) Enable(name string) error {
	return o.with(name, func(item T) error { return item.Enable() })
}

// Disable disables the item registered under name. It does nothing if
// there is no such item.
func (o *Manager[T]) Disable(name string) error {
	return o.with(name, func(item T) error { return item.Disable() })
}

// EnableAll enables every item that is not already enabled.
func (o *Manager[T]) EnableAll() error {
	return o.each(
		func(item T) bool { return item.IsEnabled() },
		func(item T) error { return item.Enable() })
}

// DisableAll disables every item that is enabled.
func (o *Manager[T]) DisableAll() error {
	return o.each(
		func(item T) bool { return !item.IsEnabled() },
		func(item T) error { return item.Disable() })
}

// Close disposes every item, then closes the configured OptCloser.
// Items cannot be added to a closed Manager. Calling Close more
// than once is a no-op.
func (o *Manager[T]) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}

	o.closed = true

	err := o.removeAllLocked()

	if o.config.OptCloser != nil {
		closeErr := o.config.OptCloser.Close()
		if closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to close accessor - %w", closeErr))
		}
	}

	return err
}

// with calls fn on the item registered under name while holding the
// registry's read lock, which keeps the item from being removed.
func (o *Manager[T]) with(name string, fn func(T) error) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	item, hasIt := o.items[name]
	if !hasIt {
		return nil
	}

	return fn(item)
}

// each calls fn on every item for which skip returns false.
// Errors are collected rather than stopping the iteration.
func (o *Manager[T]) each(skip func(T) bool, fn func(T) error) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var result error

	for _, name := range o.sortedNamesLocked() {
		item := o.items[name]
		if skip(item) {
			continue
		}

		err := fn(item)
		if err != nil {
			result = multierr.Append(result, fmt.Errorf("%q - %w", name, err))
		}
	}

	return result
}

func (o *Manager[T]) sortedNamesLocked() []string {
	names := make([]string, 0, len(o.items))
	for name := range o.items {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (o *Manager[T]) logf(format string, v ...interface{}) {
	if o.config.OptLogger != nil {
		o.config.OptLogger.Printf(format, v...)
	}
}
