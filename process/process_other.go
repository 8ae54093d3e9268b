//go:build !linux && !windows

package process

import (
	"errors"
	"time"

	"gitlab.com/stephen-fox/hookkit/memory"
	"gitlab.com/stephen-fox/hookkit/pattern"
)

func open(int) (*Process, error) {
	return nil, errors.ErrUnsupported
}

func openSelf() (*Process, error) {
	return nil, errors.ErrUnsupported
}

type osHandle struct{}

func (o *osHandle) readMemory(memory.Address, int) ([]byte, error) {
	return nil, errors.ErrUnsupported
}

func (o *osHandle) writeMemory(memory.Address, []byte) (int, error) {
	return 0, errors.ErrUnsupported
}

func (o *osHandle) module(string) (pattern.Module, error) {
	return pattern.Module{}, errors.ErrUnsupported
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
	return nil
}
