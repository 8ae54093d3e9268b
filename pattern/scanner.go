package pattern

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"strconv"

	"gitlab.com/stephen-fox/hookkit/memory"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidScanner is returned by NewScanner when its
// configuration is invalid.
var ErrInvalidScanner = errors.New("invalid scanner configuration")

// Module is a contiguous region of memory, usually a loaded module's image.
type Module struct {
	Name string
	Base memory.Address
	Size int
}

// ScannerConfig configures a Scanner.
type ScannerConfig struct {
	// Accessor reads the module's memory.
	Accessor memory.Accessor

	// Module is the region to scan.
	Module Module

	// Offset is the number of bytes from the start of the module
	// at which scanning begins.
	Offset int

	// PointerSize is the size of the pointers that Data patterns
	// resolve, in bytes. It defaults to the host's pointer size.
	PointerSize int

	// OptLogger, when non-nil, logs each resolved pattern.
	OptLogger *log.Logger
}

func (o ScannerConfig) validate() error {
	if o.Accessor == nil {
		return fmt.Errorf("%w: accessor cannot be nil", ErrInvalidScanner)
	}

	if o.Module.Size <= 0 {
		return fmt.Errorf("%w: module size must be greater than zero", ErrInvalidScanner)
	}

	if o.Offset < 0 || o.Offset >= o.Module.Size {
		return fmt.Errorf("%w: offset %d is outside of the module (size %d)",
			ErrInvalidScanner, o.Offset, o.Module.Size)
	}

	switch o.PointerSize {
	case 0, 4, 8:
	default:
		return fmt.Errorf("%w: unsupported pointer size: %d", ErrInvalidScanner, o.PointerSize)
	}

	return nil
}

// NewScannerOrExit calls NewScanner. It calls DefaultExitFn if an
// error occurs.
func NewScannerOrExit(config ScannerConfig) *Scanner {
	s, err := NewScanner(config)
	if err != nil {
		DefaultExitFn(fmt.Errorf("pattern: failed to create scanner - %w", err))
	}
	return s
}

// NewScanner reads the module's memory, starting at config.Offset,
// into a private buffer. Errors from the Accessor are returned as-is.
func NewScanner(config ScannerConfig) (*Scanner, error) {
	err := config.validate()
	if err != nil {
		return nil, err
	}

	if config.PointerSize == 0 {
		config.PointerSize = strconv.IntSize / 8
	}

	start := config.Module.Base.Add(int64(config.Offset))

	data, err := config.Accessor.ReadMemory(start, config.Module.Size-config.Offset)
	if err != nil {
		return nil, err
	}

	return &Scanner{
		config: config,
		data:   data,
	}, nil
}

// Scanner resolves Patterns against a snapshot of a module's memory.
//
// The snapshot is taken once, when the Scanner is created, and is never
// modified. A Scanner is therefore safe for concurrent use.
type Scanner struct {
	config ScannerConfig
	data   []byte
}

// Module returns the scanned module.
func (o *Scanner) Module() Module {
	return o.config.Module
}

// Data returns the snapshot. It must not be modified.
func (o *Scanner) Data() []byte {
	return o.data
}

// Result is the outcome of resolving a Pattern. The address fields
// are only meaningful when Found is true.
type Result struct {
	Found bool

	// BaseAddress is the absolute address of a Function match,
	// or, for Data patterns, the resolved pointer's value relative
	// to the module's base address.
	BaseAddress memory.Address

	// ReadAddress is the absolute address of a Function match,
	// or the pointer read from a Data match.
	ReadAddress memory.Address

	// Offset is the match's offset from the module's base address.
	Offset int
}

// FindOrExit calls Find. It calls DefaultExitFn if an error occurs.
func (o *Scanner) FindOrExit(p Pattern) Result {
	res, err := o.Find(p)
	if err != nil {
		DefaultExitFn(fmt.Errorf("pattern: failed to find %q - %w", p.Name, err))
	}
	return res
}

// Find resolves p. A pattern that does not match is not an error;
// the zero Result is returned instead.
func (o *Scanner) Find(p Pattern) (Result, error) {
	switch p.Type {
	case Function, Data:
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedType, p.Type)
	}

	i, err := p.Index(o.data)
	if err != nil {
		return Result{}, err
	}

	if i < 0 {
		if o.config.OptLogger != nil {
			o.config.OptLogger.Printf("pattern %q not found in %q", p.Name, o.config.Module.Name)
		}

		return Result{}, nil
	}

	offset := i + o.config.Offset

	var res Result

	switch p.Type {
	case Function:
		addr := o.config.Module.Base.Add(int64(offset))

		res = Result{
			Found:       true,
			BaseAddress: addr,
			ReadAddress: addr,
			Offset:      offset,
		}
	case Data:
		at := i + p.Offset
		if at < 0 || at+o.config.PointerSize > len(o.data) {
			return Result{}, fmt.Errorf("pointer at match offset %d + %d is outside of the scanned region",
				offset, p.Offset)
		}

		ptr, err := memory.DecodePointer(o.data[at:], o.config.PointerSize)
		if err != nil {
			return Result{}, err
		}

		// Relative to the module, unlike Function results.
		res = Result{
			Found:       true,
			BaseAddress: ptr - o.config.Module.Base,
			ReadAddress: ptr,
			Offset:      offset,
		}
	}

	if o.config.OptLogger != nil {
		o.config.OptLogger.Printf("pattern %q (%s) found at %s+0x%x - %+v",
			p.Name, p.Type, o.config.Module.Name, offset, res)
	}

	return res, nil
}

// FindAll resolves patterns concurrently. The returned Results are
// in the same order as patterns. The first error encountered is
// returned.
func (o *Scanner) FindAll(patterns []Pattern) ([]Result, error) {
	results := make([]Result, len(patterns))

	var group errgroup.Group
	group.SetLimit(runtime.GOMAXPROCS(0))

	for i := range patterns {
		i := i

		group.Go(func() error {
			res, err := o.Find(patterns[i])
			if err != nil {
				return fmt.Errorf("failed to find pattern %d (%q) - %w",
					i, patterns[i].Name, err)
			}

			results[i] = res

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	return results, nil
}
