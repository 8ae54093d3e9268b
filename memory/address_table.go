package memory

import (
	"fmt"
	"sync"
)

// NewAddressTable creates a new instance of an *AddressTable with
// the specified initial context. Refer to AddressTable's documentation
// for more information.
func NewAddressTable(initialContext string) *AddressTable {
	return &AddressTable{
		currentContext:          initialContext,
		contextToSymbolsToAddrs: make(map[string]map[string]Address),
	}
}

// AddressTable organizes the addresses of symbols in different contexts.
// A context can be (but is not limited to) the name of a module, or the
// name of a build of the target software.
//
// For example, the process package keeps one AddressTable per opened
// process, using module names as contexts, to remember the addresses of
// exported functions it has already resolved.
//
// An AddressTable is safe for concurrent use.
type AddressTable struct {
	mu                      sync.RWMutex
	currentContext          string
	contextToSymbolsToAddrs map[string]map[string]Address
}

// SetContext sets the current context to the specified value.
func (o *AddressTable) SetContext(context string) *AddressTable {
	o.mu.Lock()
	o.currentContext = context
	o.mu.Unlock()
	return o
}

// CurrentContext returns the current context.
func (o *AddressTable) CurrentContext() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.currentContext
}

// DeleteContext deletes the specified context.
func (o *AddressTable) DeleteContext(context string) *AddressTable {
	o.mu.Lock()
	delete(o.contextToSymbolsToAddrs, context)
	o.mu.Unlock()
	return o
}

// AddSymbolInContext adds or sets the address of a symbol for
// the specified context.
func (o *AddressTable) AddSymbolInContext(symbolName string, address Address, context string) *AddressTable {
	o.mu.Lock()
	defer o.mu.Unlock()

	symbolsToAddrs := o.contextToSymbolsToAddrs[context]
	if symbolsToAddrs == nil {
		symbolsToAddrs = make(map[string]Address)
		o.contextToSymbolsToAddrs[context] = symbolsToAddrs
	}

	symbolsToAddrs[symbolName] = address

	return o
}

// DeleteSymbolInAllContexts deletes the specified symbol from all contexts.
func (o *AddressTable) DeleteSymbolInAllContexts(symbolName string) *AddressTable {
	o.mu.Lock()
	for _, symbolsToAddrs := range o.contextToSymbolsToAddrs {
		delete(symbolsToAddrs, symbolName)
	}
	o.mu.Unlock()
	return o
}

// LookupInContext returns the address of a symbol in the specified
// context, and reports whether it was found.
func (o *AddressTable) LookupInContext(symbolName string, context string) (Address, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	addr, hasIt := o.contextToSymbolsToAddrs[context][symbolName]
	return addr, hasIt
}

// Address returns the address of the specified symbol for the
// currently selected context.
func (o *AddressTable) Address(symbolName string) (Address, error) {
	context := o.CurrentContext()

	addr, hasIt := o.LookupInContext(symbolName, context)
	if !hasIt {
		return 0, fmt.Errorf("failed to find the symbol '%s' in the table for '%s'",
			symbolName, context)
	}

	return addr, nil
}

// AddressOrExit calls Address. It calls DefaultExitFn if the symbol
// does not exist in the current context.
func (o *AddressTable) AddressOrExit(symbolName string) Address {
	addr, err := o.Address(symbolName)
	if err != nil {
		DefaultExitFn(err)
	}
	return addr
}
