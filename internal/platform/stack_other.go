//go:build !linux && !darwin

package platform

// Stack is a task's private stack region. On platforms without the
// mmap/mprotect primitives used by the unix implementation, the guard page
// degrades to a plain allocation with no hardware overflow trap; stack
// overflow there is only caught by whatever high-water-mark checks the
// caller layers on top (the object directory and worker do not rely on the
// guard page for correctness, only for turning overflow into a clean
// exception instead of corruption).
type Stack struct {
	usable []byte
}

// NewStack allocates a plain byte slice of the requested size.
func NewStack(size int) (*Stack, error) {
	return &Stack{usable: make([]byte, size)}, nil
}

// Bytes returns the stack's backing storage.
func (s *Stack) Bytes() []byte { return s.usable }

// Release drops the reference to the backing storage.
func (s *Stack) Release() error {
	s.usable = nil
	return nil
}
