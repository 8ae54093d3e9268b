package process

import (
	"fmt"
	"math"
	"strings"

	"gitlab.com/stephen-fox/hookkit/memory"
)

// ThreadParam is the argument passed to a thread started by
// CreateAndJoin. It is one of IntParam, PointerParam, or StringParam.
type ThreadParam interface {
	threadParam()
}

// IntParam is passed to the thread as-is.
type IntParam int64

// PointerParam is an address in the target process.
type PointerParam memory.Address

// StringParam is copied into the target process as a null-terminated
// string, and the thread receives its address.
type StringParam string

func (IntParam) threadParam()     {}
func (PointerParam) threadParam() {}
func (StringParam) threadParam()  {}

// threadArg is a ThreadParam encoded for a process.
type threadArg struct {
	// value is passed to the thread unless data is non-nil.
	value uint64

	// data must be copied into the process. The thread
	// receives its address.
	data []byte
}

func encodeParam(param ThreadParam, ptrSize int) (threadArg, error) {
	switch p := param.(type) {
	case nil:
		return threadArg{}, nil
	case IntParam:
		if ptrSize == 4 && (p > math.MaxUint32 || p < math.MinInt32) {
			return threadArg{}, fmt.Errorf("int parameter %d does not fit in 32 bits", p)
		}

		if ptrSize == 4 {
			return threadArg{value: uint64(uint32(p))}, nil
		}

		return threadArg{value: uint64(p)}, nil
	case PointerParam:
		if ptrSize == 4 && p > math.MaxUint32 {
			return threadArg{}, fmt.Errorf("pointer parameter %s does not fit in 32 bits", memory.Address(p))
		}

		return threadArg{value: uint64(p)}, nil
	case StringParam:
		if strings.IndexByte(string(p), 0) >= 0 {
			return threadArg{}, fmt.Errorf("string parameter contains a null byte")
		}

		return threadArg{data: append([]byte(p), 0)}, nil
	default:
		return threadArg{}, fmt.Errorf("unsupported thread parameter type: %T", param)
	}
}
