package applied

// NewComplexManager returns an empty *ComplexManager.
func NewComplexManager[T ComplexApplier](config ManagerConfig) *ComplexManager[T] {
	return &ComplexManager[T]{
		Manager: NewManager[T](config),
	}
}

// ComplexManager is a Manager of items that can be disabled and
// enabled by rules.
type ComplexManager[T ComplexApplier] struct {
	*Manager[T]
}

// EnableDueToRules re-enables the item registered under name if it was
// disabled due to rules. It does nothing if there is no such item.
func (o *ComplexManager[T]) EnableDueToRules(name string) error {
	return o.with(name, func(item T) error { return item.EnableDueToRules() })
}

// DisableDueToRules disables the item registered under name due to
// rules. It does nothing if there is no such item.
func (o *ComplexManager[T]) DisableDueToRules(name string) error {
	return o.with(name, func(item T) error { return item.DisableDueToRules() })
}

// EnableAllDueToRules calls EnableDueToRules on every item that
// is not already enabled.
func (o *ComplexManager[T]) EnableAllDueToRules() error {
	return o.each(
		func(item T) bool { return item.IsEnabled() },
		func(item T) error { return item.EnableDueToRules() })
}

// DisableAllDueToRules calls DisableDueToRules on every enabled item
// that does not ignore rules. Items that are already disabled are
// left as they are.
func (o *ComplexManager[T]) DisableAllDueToRules() error {
	return o.each(
		func(item T) bool { return !item.IsEnabled() || item.IgnoresRules() },
		func(item T) error { return item.DisableDueToRules() })
}
