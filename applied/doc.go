// Package applied installs reversible modifications to a process' memory.
//
// Two kinds of modification are provided. A Patch overwrites bytes at an
// address with caller-supplied bytes. A Detour overwrites the start of a
// function with a trampoline that transfers control to a hook function.
// Both capture the bytes they overwrite when they are created, and write
// them back when disabled or disposed. Creating a Patch or a Detour never
// writes memory.
//
// Rules
//
// Besides being enabled and disabled by a user, an item can be disabled
// "due to rules", meaning by some policy that temporarily suppresses it
// (for example, while an integrity check is running). An item disabled
// due to rules ignores plain Enable calls until it is enabled due to rules
// again, which restores it. Items created with IgnoreRules set are immune
// to DisableDueToRules.
//
// Managers
//
// A Manager owns the items added to it and refers to them by name. Adding
// an item whose name is already registered disposes the existing item and
// replaces it. Closing a Manager disposes every item before releasing the
// resources the items share, such as the memory Accessor.
//
// Concurrency
//
// Items and Managers are safe for concurrent use. State transitions of a
// single item are serialized by a per-item mutex.
//
// Detour.CallOriginal temporarily restores the original function, calls
// it, and then re-installs the trampoline. Other threads that execute the
// target function during that window run the original function without
// being redirected to the hook. This is a known limitation.
package applied
