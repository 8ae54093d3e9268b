// Package process provides access to the memory, modules, and threads of
// a running process.
//
// A *Process implements memory.Accessor, which makes it usable as the
// target of pattern scans, patches, and detours. On Windows, it also
// implements applied.Caller.
package process

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	gopsutil "github.com/shirou/gopsutil/v3/process"
	"gitlab.com/stephen-fox/hookkit/memory"
	"gitlab.com/stephen-fox/hookkit/pattern"
)

var (
	// ErrProcessNotFound is returned by OpenByName when no process
	// has the requested name.
	ErrProcessNotFound = errors.New("process not found")

	// ErrModuleNotFound is returned by Module when the process
	// has not loaded the requested module.
	ErrModuleNotFound = errors.New("module not found")

	// ErrClosed is returned by operations on a closed Process.
	ErrClosed = errors.New("process is closed")
)

// OpenOrExit calls Open. It calls DefaultExitFn if an error occurs.
func OpenOrExit(pid int) *Process {
	p, err := Open(pid)
	if err != nil {
		defaultExitFn(fmt.Errorf("failed to open process %d - %w", pid, err))
	}
	return p
}

// Open opens the process with the specified PID.
func Open(pid int) (*Process, error) {
	exists, err := gopsutil.PidExists(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to check if pid %d exists - %w", pid, err)
	}

	if !exists {
		return nil, fmt.Errorf("%w: pid %d", ErrProcessNotFound, pid)
	}

	return open(pid)
}

// OpenByNameOrExit calls OpenByName. It calls DefaultExitFn if an
// error occurs.
func OpenByNameOrExit(name string) *Process {
	p, err := OpenByName(name)
	if err != nil {
		defaultExitFn(fmt.Errorf("failed to open process %q - %w", name, err))
	}
	return p
}

// OpenByName opens the first process whose executable name matches name.
// The comparison is case-insensitive.
func OpenByName(name string) (*Process, error) {
	procs, err := gopsutil.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes - %w", err)
	}

	for _, proc := range procs {
		procName, err := proc.Name()
		if err != nil {
			// Processes exit while being enumerated.
			continue
		}

		if strings.EqualFold(procName, name) {
			return open(int(proc.Pid))
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrProcessNotFound, name)
}

// Self opens the current process.
func Self() (*Process, error) {
	return openSelf()
}

func newProcess(pid int, self bool, ptrSize int, h *osHandle) *Process {
	return &Process{
		pid:     pid,
		self:    self,
		ptrSize: ptrSize,
		h:       h,
		procs:   memory.NewAddressTable(""),
	}
}

// Process is an open process.
type Process struct {
	pid     int
	self    bool
	ptrSize int
	h       *osHandle

	// procs caches exported function addresses. The context
	// is the module name and the symbol is the function name.
	procs *memory.AddressTable

	mu     sync.RWMutex
	closed bool
}

func (o *Process) PID() int {
	return o.pid
}

// IsSelf reports whether the Process is the current process.
func (o *Process) IsSelf() bool {
	return o.self
}

// PointerSize returns the size of a pointer in the process in bytes.
func (o *Process) PointerSize() int {
	return o.ptrSize
}

// ReadMemory implements memory.Accessor.
func (o *Process) ReadMemory(address memory.Address, size int) ([]byte, error) {
	if size <= 0 {
		return nil, &memory.AccessError{Op: memory.OpRead, Address: address, Size: size, Err: memory.ErrInvalidSize}
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return nil, &memory.AccessError{Op: memory.OpRead, Address: address, Size: size, Err: ErrClosed}
	}

	p, err := o.h.readMemory(address, size)
	if err != nil {
		return nil, &memory.AccessError{Op: memory.OpRead, Address: address, Size: size, Err: err}
	}

	return p, nil
}

// WriteMemory implements memory.Accessor. Read-only pages, such as
// those of a module's code, are written to as well.
func (o *Process) WriteMemory(address memory.Address, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, &memory.AccessError{Op: memory.OpWrite, Address: address, Err: memory.ErrInvalidSize}
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return 0, &memory.AccessError{Op: memory.OpWrite, Address: address, Size: len(p), Err: ErrClosed}
	}

	n, err := o.h.writeMemory(address, p)
	if err != nil {
		return n, &memory.AccessError{Op: memory.OpWrite, Address: address, Size: len(p), Err: err}
	}

	return n, nil
}

// ModuleOrExit calls Module. It calls DefaultExitFn if an error occurs.
func (o *Process) ModuleOrExit(name string) pattern.Module {
	m, err := o.Module(name)
	if err != nil {
		defaultExitFn(fmt.Errorf("failed to find module %q - %w", name, err))
	}
	return m
}

// Module returns the loaded module with the specified file name.
// An empty name refers to the process' executable.
func (o *Process) Module(name string) (pattern.Module, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return pattern.Module{}, ErrClosed
	}

	return o.h.module(name)
}

// ProcAddress returns the address of the function named fn that is
// exported by module. Results are cached for the lifetime of the Process.
func (o *Process) ProcAddress(module string, fn string) (memory.Address, error) {
	key := strings.ToLower(module)

	addr, hasIt := o.procs.LookupInContext(fn, key)
	if hasIt {
		return addr, nil
	}

	m, err := o.Module(module)
	if err != nil {
		return 0, err
	}

	o.mu.RLock()
	addr, err = o.h.procAddress(m, fn)
	o.mu.RUnlock()
	if err != nil {
		return 0, fmt.Errorf("failed to find %s!%s - %w", module, fn, err)
	}

	o.procs.AddSymbolInContext(fn, addr, key)

	return addr, nil
}

// CreateAndJoin calls CreateAndJoinTimeout without a timeout.
func (o *Process) CreateAndJoin(start memory.Address, param ThreadParam) (uint32, error) {
	return o.CreateAndJoinTimeout(start, param, 0)
}

// CreateAndJoinTimeout starts a thread in the process at start,
// passing it param, and waits for the thread to exit. It returns
// the thread's exit code. A timeout of zero waits indefinitely.
//
// Memory allocated in the process for a StringParam is freed after
// the thread exits. It is leaked if the thread times out.
func (o *Process) CreateAndJoinTimeout(start memory.Address, param ThreadParam, timeout time.Duration) (uint32, error) {
	arg, err := encodeParam(param, o.ptrSize)
	if err != nil {
		return 0, err
	}

	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return 0, ErrClosed
	}

	return o.h.createAndJoin(start, arg, timeout)
}

// timeoutMillis converts a positive timeout to milliseconds. Partial
// milliseconds are rounded up, and the result never reaches
// math.MaxUint32, which the OS treats as "wait forever".
func timeoutMillis(timeout time.Duration) uint32 {
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}

	if ms >= math.MaxUint32 {
		return math.MaxUint32 - 1
	}

	return uint32(ms)
}

// Call calls the function at fn. Functions in the current process
// can take any number of arguments. Functions in other processes are
// called on a new thread and can take at most one argument.
func (o *Process) Call(fn memory.Address, args ...uintptr) (uintptr, error) {
	if o.self {
		o.mu.RLock()
		defer o.mu.RUnlock()

		if o.closed {
			return 0, ErrClosed
		}

		return o.h.callLocal(fn, args...)
	}

	var param ThreadParam = IntParam(0)

	switch len(args) {
	case 0:
	case 1:
		param = PointerParam(args[0])
	default:
		return 0, fmt.Errorf("remote calls take at most one argument - got %d", len(args))
	}

	code, err := o.CreateAndJoin(fn, param)
	if err != nil {
		return 0, err
	}

	return uintptr(code), nil
}

// Close releases the process. Calling Close more than once is a no-op.
func (o *Process) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}

	o.closed = true

	return o.h.close()
}
