//go:build linux || darwin

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Stack is a task's private stack region: a virtual memory reservation with
// a trailing guard page that traps overflow into a SIGSEGV the exception
// chain can classify as StackOverflow instead of silent corruption.
type Stack struct {
	mem   []byte
	usable []byte
}

// NewStack reserves size bytes (rounded up to the page size) plus one
// trailing guard page, mapped PROT_NONE so any access past the usable
// region faults immediately.
func NewStack(size int) (*Stack, error) {
	pageSize := unix.Getpagesize()
	size = roundUp(size, pageSize)
	total := size + pageSize

	mem, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("platform: mmap stack: %w", err)
	}
	guard := mem[size:]
	if err := unix.Mprotect(guard, unix.PROT_NONE); err != nil {
		_ = unix.Munmap(mem)
		return nil, fmt.Errorf("platform: mprotect guard page: %w", err)
	}
	return &Stack{mem: mem, usable: mem[:size]}, nil
}

// Bytes returns the usable (non-guard) portion of the stack.
func (s *Stack) Bytes() []byte { return s.usable }

// Release unmaps the entire reservation, guard page included.
func (s *Stack) Release() error {
	if s.mem == nil {
		return nil
	}
	err := unix.Munmap(s.mem)
	s.mem, s.usable = nil, nil
	return err
}

func roundUp(n, multiple int) int {
	if n%multiple == 0 {
		return n
	}
	return (n/multiple + 1) * multiple
}
