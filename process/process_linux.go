package process

import (
	"bufio"
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gitlab.com/stephen-fox/hookkit/memory"
	"gitlab.com/stephen-fox/hookkit/pattern"
	"golang.org/x/sys/unix"
)

func open(pid int) (*Process, error) {
	return openLinux(pid, pid == os.Getpid())
}

func openSelf() (*Process, error) {
	return openLinux(os.Getpid(), true)
}

func openLinux(pid int, self bool) (*Process, error) {
	procDir := filepath.Join("/proc", strconv.Itoa(pid))

	ptrSize, err := elfPointerSize(filepath.Join(procDir, "exe"))
	if err != nil {
		return nil, err
	}

	// The mem file permits writes to read-only mappings,
	// which process_vm_writev does not.
	mem, err := os.OpenFile(filepath.Join(procDir, "mem"), os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open process memory - %w", err)
	}

	return newProcess(pid, self, ptrSize, &osHandle{
		pid:     pid,
		procDir: procDir,
		mem:     mem,
	}), nil
}

func elfPointerSize(exePath string) (int, error) {
	f, err := elf.Open(exePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open executable - %w", err)
	}
	defer f.Close()

	switch f.Class {
	case elf.ELFCLASS32:
		return 4, nil
	case elf.ELFCLASS64:
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported elf class: %s", f.Class)
	}
}

type osHandle struct {
	pid     int
	procDir string
	mem     *os.File
}

func (o *osHandle) readMemory(address memory.Address, size int) ([]byte, error) {
	p := make([]byte, size)

	local := []unix.Iovec{{Base: &p[0]}}
	local[0].SetLen(size)

	remote := []unix.RemoteIovec{{Base: uintptr(address), Len: size}}

	n, err := unix.ProcessVMReadv(o.pid, local, remote, 0)
	if err != nil {
		return nil, fmt.Errorf("process_vm_readv failed - %w", err)
	}

	if n != size {
		return nil, fmt.Errorf("short read of %d bytes", n)
	}

	return p, nil
}

func (o *osHandle) writeMemory(address memory.Address, p []byte) (int, error) {
	return o.mem.WriteAt(p, int64(address))
}

// module finds the mappings of a file in the maps file. The module
// spans from the lowest mapping of the file to the end of the highest.
func (o *osHandle) module(name string) (pattern.Module, error) {
	var exePath string
	if name == "" {
		var err error
		exePath, err = os.Readlink(filepath.Join(o.procDir, "exe"))
		if err != nil {
			return pattern.Module{}, fmt.Errorf("failed to read executable path - %w", err)
		}
	}

	maps, err := os.Open(filepath.Join(o.procDir, "maps"))
	if err != nil {
		return pattern.Module{}, fmt.Errorf("failed to open maps - %w", err)
	}
	defer maps.Close()

	var start, end uint64
	var modName string

	scanner := bufio.NewScanner(maps)
	for scanner.Scan() {
		mapping, ok := parseMapsLine(scanner.Text())
		if !ok {
			continue
		}

		if exePath != "" {
			if mapping.path != exePath {
				continue
			}
		} else if filepath.Base(mapping.path) != name {
			continue
		}

		if modName == "" || mapping.start < start {
			start = mapping.start
		}

		if mapping.end > end {
			end = mapping.end
		}

		modName = filepath.Base(mapping.path)
	}

	err = scanner.Err()
	if err != nil {
		return pattern.Module{}, fmt.Errorf("failed to read maps - %w", err)
	}

	if modName == "" {
		return pattern.Module{}, fmt.Errorf("%w: %q", ErrModuleNotFound, name)
	}

	return pattern.Module{
		Name: modName,
		Base: memory.Address(start),
		Size: int(end - start),
	}, nil
}

type mapping struct {
	start uint64
	end   uint64
	path  string
}

// parseMapsLine parses a line of a maps file, such as:
//
//	7f1c2a400000-7f1c2a428000 r--p 00000000 08:01 1316 /usr/lib/libc.so.6
//
// Anonymous mappings are skipped.
func parseMapsLine(line string) (mapping, bool) {
	fields := strings.Fields(line)
	if len(fields) < 6 || !strings.HasPrefix(fields[5], "/") {
		return mapping{}, false
	}

	startStr, endStr, found := strings.Cut(fields[0], "-")
	if !found {
		return mapping{}, false
	}

	start, err := strconv.ParseUint(startStr, 16, 64)
	if err != nil {
		return mapping{}, false
	}

	end, err := strconv.ParseUint(endStr, 16, 64)
	if err != nil || end <= start {
		return mapping{}, false
	}

	return mapping{
		start: start,
		end:   end,
		path:  strings.Join(fields[5:], " "),
	}, true
}

func (o *osHandle) procAddress(pattern.Module, string) (memory.Address, error) {
	return 0, errors.ErrUnsupported
}

func (o *osHandle) createAndJoin(memory.Address, threadArg, time.Duration) (uint32, error) {
	return 0, errors.ErrUnsupported
}

func (o *osHandle) callLocal(memory.Address, ...uintptr) (uintptr, error) {
	return 0, errors.ErrUnsupported
}

func (o *osHandle) close() error {
	return o.mem.Close()
}
