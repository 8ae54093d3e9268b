// Package hookkit provides functionality for finding and modifying code
// in a running process.
//
// APIs are separated into subpackages, and documented accordingly:
//
//   - memory: reading and writing a process' memory, pointers,
//     and address tables
//   - pattern: byte signatures and module scanning
//   - applied: patches, detours, and the managers that own them
//   - process: opening processes, finding modules and exports,
//     and starting threads
//   - peimage: mapping PE files for offline scanning
//   - sigdb: TOML signature databases
//
// For scripting convenience, "OrExit" functions and methods are provided.
// Any errors encountered by these functions are treated as fatal. In such
// cases, an exit handler function is invoked.
package hookkit
