package process

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unsafe"

	"gitlab.com/stephen-fox/hookkit/memory"
	"gitlab.com/stephen-fox/hookkit/pattern"
	"golang.org/x/sys/windows"
)

const waitTimeout = 0x102

var (
	kernel32                  = windows.NewLazySystemDLL("kernel32.dll")
	procCreateRemoteThread    = kernel32.NewProc("CreateRemoteThread")
	procGetExitCodeThread     = kernel32.NewProc("GetExitCodeThread")
	procVirtualAllocEx        = kernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx         = kernel32.NewProc("VirtualFreeEx")
	procFlushInstructionCache = kernel32.NewProc("FlushInstructionCache")
)

func open(pid int) (*Process, error) {
	if uint32(pid) == windows.GetCurrentProcessId() {
		return openSelf()
	}

	h, err := windows.OpenProcess(windows.PROCESS_ALL_ACCESS, false, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d - %w", pid, err)
	}

	ptrSize, err := pointerSizeOf(h)
	if err != nil {
		windows.CloseHandle(h)
		return nil, err
	}

	return newProcess(pid, false, ptrSize, &osHandle{
		pid:     uint32(pid),
		process: h,
		ptrSize: ptrSize,
	}), nil
}

func openSelf() (*Process, error) {
	h := windows.CurrentProcess()

	ptrSize, err := pointerSizeOf(h)
	if err != nil {
		return nil, err
	}

	return newProcess(int(windows.GetCurrentProcessId()), true, ptrSize, &osHandle{
		pid:     windows.GetCurrentProcessId(),
		process: h,
		ptrSize: ptrSize,
		pseudo:  true,
	}), nil
}

// pointerSizeOf assumes a 64-bit Windows when the current
// program is 64-bit.
func pointerSizeOf(h windows.Handle) (int, error) {
	if unsafe.Sizeof(uintptr(0)) == 4 {
		return 4, nil
	}

	var isWow64 bool
	err := windows.IsWow64Process(h, &isWow64)
	if err != nil {
		return 0, fmt.Errorf("failed to check if process is wow64 - %w", err)
	}

	if isWow64 {
		return 4, nil
	}

	return 8, nil
}

type osHandle struct {
	pid     uint32
	process windows.Handle
	ptrSize int
	pseudo  bool
}

func (o *osHandle) readMemory(address memory.Address, size int) ([]byte, error) {
	p := make([]byte, size)

	var n uintptr
	err := windows.ReadProcessMemory(o.process, uintptr(address), &p[0], uintptr(size), &n)
	if err != nil {
		return nil, fmt.Errorf("ReadProcessMemory failed - %w", err)
	}

	if int(n) != size {
		return nil, fmt.Errorf("short read of %d bytes", n)
	}

	return p, nil
}

// writeMemory makes the destination writable for the duration of
// the write and flushes the instruction cache afterwards.
func (o *osHandle) writeMemory(address memory.Address, p []byte) (int, error) {
	var oldProtect uint32
	err := windows.VirtualProtectEx(o.process, uintptr(address), uintptr(len(p)),
		windows.PAGE_EXECUTE_READWRITE, &oldProtect)
	if err != nil {
		return 0, fmt.Errorf("VirtualProtectEx failed - %w", err)
	}

	var n uintptr
	writeErr := windows.WriteProcessMemory(o.process, uintptr(address), &p[0], uintptr(len(p)), &n)

	var ignored uint32
	protectErr := windows.VirtualProtectEx(o.process, uintptr(address), uintptr(len(p)),
		oldProtect, &ignored)

	procFlushInstructionCache.Call(uintptr(o.process), uintptr(address), uintptr(len(p)))

	if writeErr != nil {
		return int(n), fmt.Errorf("WriteProcessMemory failed - %w", writeErr)
	}

	if protectErr != nil {
		return int(n), fmt.Errorf("failed to restore memory protection 0x%x - %w",
			oldProtect, protectErr)
	}

	return int(n), nil
}

func (o *osHandle) module(name string) (pattern.Module, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(
		windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, o.pid)
	if err != nil {
		return pattern.Module{}, fmt.Errorf("failed to create module snapshot - %w", err)
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	err = windows.Module32First(snapshot, &entry)
	for err == nil {
		modName := windows.UTF16ToString(entry.Module[:])

		// The first module is the executable.
		if name == "" || strings.EqualFold(modName, name) {
			return pattern.Module{
				Name: modName,
				Base: memory.Address(entry.ModBaseAddr),
				Size: int(entry.ModBaseSize),
			}, nil
		}

		err = windows.Module32Next(snapshot, &entry)
	}

	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return pattern.Module{}, fmt.Errorf("failed to enumerate modules - %w", err)
	}

	return pattern.Module{}, fmt.Errorf("%w: %q", ErrModuleNotFound, name)
}

// procAddress finds fn in a copy of the module loaded into the current
// process without running its initialization code, and translates its
// address to the module's base in the target process.
func (o *osHandle) procAddress(m pattern.Module, fn string) (memory.Address, error) {
	if o.ptrSize != int(unsafe.Sizeof(uintptr(0))) {
		return 0, fmt.Errorf("cannot resolve exports of a %d-bit process from a %d-bit program",
			o.ptrSize*8, unsafe.Sizeof(uintptr(0))*8)
	}

	local, err := windows.LoadLibraryEx(m.Name, 0, windows.DONT_RESOLVE_DLL_REFERENCES)
	if err != nil {
		return 0, fmt.Errorf("failed to load %q - %w", filepath.Base(m.Name), err)
	}
	defer windows.FreeLibrary(local)

	proc, err := windows.GetProcAddress(local, fn)
	if err != nil {
		return 0, err
	}

	rva := proc - uintptr(local)

	return m.Base.Add(int64(rva)), nil
}

func (o *osHandle) createAndJoin(start memory.Address, arg threadArg, timeout time.Duration) (uint32, error) {
	param := uintptr(arg.value)

	if arg.data != nil {
		remote, err := o.alloc(arg.data)
		if err != nil {
			return 0, err
		}

		param = remote

		// The thread may still be reading the string after a timeout.
		freeIt := true
		defer func() {
			if freeIt {
				o.free(remote)
			}
		}()

		code, timedOut, err := o.runThread(start, param, timeout)
		freeIt = !timedOut
		return code, err
	}

	code, _, err := o.runThread(start, param, timeout)
	return code, err
}

func (o *osHandle) runThread(start memory.Address, param uintptr, timeout time.Duration) (uint32, bool, error) {
	thread, _, callErr := procCreateRemoteThread.Call(
		uintptr(o.process), 0, 0, uintptr(start), param, 0, 0)
	if thread == 0 {
		return 0, false, fmt.Errorf("CreateRemoteThread failed - %w", callErr)
	}
	defer windows.CloseHandle(windows.Handle(thread))

	waitMillis := uint32(windows.INFINITE)
	if timeout > 0 {
		waitMillis = timeoutMillis(timeout)
	}

	event, err := windows.WaitForSingleObject(windows.Handle(thread), waitMillis)
	if err != nil {
		return 0, false, fmt.Errorf("failed to wait for thread - %w", err)
	}

	if event == waitTimeout {
		return 0, true, fmt.Errorf("thread did not exit within %s", timeout)
	}

	var code uint32
	ok, _, callErr := procGetExitCodeThread.Call(thread, uintptr(unsafe.Pointer(&code)))
	if ok == 0 {
		return 0, false, fmt.Errorf("GetExitCodeThread failed - %w", callErr)
	}

	return code, false, nil
}

func (o *osHandle) alloc(data []byte) (uintptr, error) {
	remote, _, callErr := procVirtualAllocEx.Call(uintptr(o.process), 0, uintptr(len(data)),
		windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if remote == 0 {
		return 0, fmt.Errorf("VirtualAllocEx failed - %w", callErr)
	}

	var n uintptr
	err := windows.WriteProcessMemory(o.process, remote, &data[0], uintptr(len(data)), &n)
	if err != nil {
		o.free(remote)
		return 0, fmt.Errorf("failed to write thread parameter - %w", err)
	}

	return remote, nil
}

func (o *osHandle) free(remote uintptr) {
	procVirtualFreeEx.Call(uintptr(o.process), remote, 0, windows.MEM_RELEASE)
}

func (o *osHandle) callLocal(fn memory.Address, args ...uintptr) (uintptr, error) {
	// The last error is only meaningful to functions that set it.
	ret, _, _ := syscall.SyscallN(uintptr(fn), args...)

	return ret, nil
}

func (o *osHandle) close() error {
	if o.pseudo {
		return nil
	}

	return windows.CloseHandle(o.process)
}
