// Package lockfree provides the bounded object pool, MPMC linked ring, MPSC
// intrusive queue and spinlock that the runtime's upper layers are built on.
// Every primitive here is built on bare sync/atomic CAS loops rather than a
// borrowed lock-free library — there isn't one in the reference pack that
// fits closer than hand-rolled atomics, the same choice the teacher made for
// its own ingress queues and microtask ring.
package lockfree

import (
	"errors"
	"sync/atomic"
)

// ErrOutOfMemory is returned by Alloc when the pool has no free slots.
var ErrOutOfMemory = errors.New("lockfree: pool exhausted")

// ErrLocked is returned by TryDestroyFinal when other locks are still held.
var ErrLocked = errors.New("lockfree: slot still locked")

// slotState is the lifecycle state of a pool slot, per the spec:
// FREE -> RESERVED -> ALIVE -> DEAD -> FREE.
type slotState uint64

const (
	stateFree slotState = iota
	stateReserved
	stateAlive
	stateDead
)

// Header bit layout, packed into a single atomic word so every transition
// is one CAS: generation occupies the low bits, state the next two, and
// the lock count the remainder. The generation field is intentionally
// narrow — the spec requires it wrap "only after exhausting the
// generation field", and a 12 bit field gives 4096 reuses per slot index
// before an ABA window reopens, which is the same order of magnitude the
// default 4096-slot directory itself uses for its index space.
const (
	genBits   = 12
	genMask   = 1<<genBits - 1
	stateBits = 2
	stateMask = 1<<stateBits - 1
	lockShift = genBits + stateBits
)

func packHeader(gen uint64, st slotState, lockCount uint64) uint64 {
	return (lockCount << lockShift) | (uint64(st) << genBits) | (gen & genMask)
}

func genOf(h uint64) uint64     { return h & genMask }
func stateOf(h uint64) slotState { return slotState((h >> genBits) & stateMask) }
func lockOf(h uint64) uint64    { return h >> lockShift }

// ID is an opaque handle into a Pool: the low bits are the generation, the
// high bits the slot index plus one (so the zero value is always invalid,
// per the spec's "ID 0 is reserved as invalid").
type ID uint32

// Valid reports whether id is not the reserved-invalid zero ID.
func (id ID) Valid() bool { return id != 0 }

const idIndexShift = genBits

func encodeID(index int, gen uint64) ID {
	return ID((uint32(index+1) << idIndexShift) | uint32(gen&genMask))
}

func decodeID(id ID) (index int, gen uint64) {
	v := uint32(id)
	return int(v>>idIndexShift) - 1, uint64(v & genMask)
}

type slot[T any] struct {
	header   atomic.Uint64
	freeNext atomic.Uint32
	value    T
}

// freeListEmpty marks the end of the intrusive free list.
const freeListEmpty = ^uint32(0)

// Pool is a bounded, lock-free object pool with generational handles. It is
// the single reusable primitive underneath the object directory and the log
// ring's node storage. Messages are not drawn from a Pool: a MsgQueue keeps
// them in ordinary heap-allocated MPSC nodes.
type Pool[T any] struct {
	slots []slot[T]
	// free is a tagged Treiber-stack head: low 32 bits are the free slot
	// index (or freeListEmpty), high 32 bits are an ABA counter bumped on
	// every push/pop so a reader never mistakes a reused index for the
	// original free-list entry.
	free atomic.Uint64
}

// New creates a Pool with the given capacity, which must be a power of two
// and fit within the 20 bits of index space the ID encoding reserves.
func New[T any](capacity int) *Pool[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("lockfree: pool capacity must be a power of two")
	}
	if capacity >= 1<<20 {
		panic("lockfree: pool capacity exceeds ID index space")
	}
	p := &Pool[T]{slots: make([]slot[T], capacity)}
	for i := range p.slots {
		next := freeListEmpty
		if i+1 < capacity {
			next = uint32(i + 1)
		}
		p.slots[i].freeNext.Store(next)
	}
	p.free.Store(packFree(0, 0))
	return p
}

// Cap returns the pool's fixed capacity.
func (p *Pool[T]) Cap() int { return len(p.slots) }

func packFree(idx uint32, tag uint32) uint64 {
	return uint64(tag)<<32 | uint64(idx)
}

func (p *Pool[T]) popFree() (int, bool) {
	for {
		old := p.free.Load()
		idx := uint32(old)
		if idx == freeListEmpty {
			return 0, false
		}
		tag := uint32(old >> 32)
		next := p.slots[idx].freeNext.Load()
		if p.free.CompareAndSwap(old, packFree(next, tag+1)) {
			return int(idx), true
		}
	}
}

func (p *Pool[T]) pushFree(idx int) {
	for {
		old := p.free.Load()
		tag := uint32(old >> 32)
		p.slots[idx].freeNext.Store(uint32(old))
		if p.free.CompareAndSwap(old, packFree(uint32(idx), tag+1)) {
			return
		}
	}
}

// Alloc reserves a free slot and returns a handle with lock count zero in
// state RESERVED. The caller must populate the slot's value (via Value)
// and then call LockFirst before any other goroutine can Lock the ID.
func (p *Pool[T]) Alloc() (ID, error) {
	idx, ok := p.popFree()
	if !ok {
		return 0, ErrOutOfMemory
	}
	for {
		old := p.slots[idx].header.Load()
		gen := genOf(old)
		nh := packHeader(gen, stateReserved, 0)
		if p.slots[idx].header.CompareAndSwap(old, nh) {
			return encodeID(idx, gen), nil
		}
	}
}

// Value returns a pointer to the slot payload for id, regardless of state.
// It performs no generation check; callers use it only between Alloc and
// LockFirst (single-writer window) or while already holding a valid lock.
func (p *Pool[T]) Value(id ID) *T {
	idx, _ := decodeID(id)
	return &p.slots[idx].value
}

// LockFirst transitions a freshly allocated slot RESERVED -> ALIVE with a
// lock count of one, representing the implicit reference the creator
// holds for as long as the object is alive. It must be called exactly
// once, after the slot has been populated.
func (p *Pool[T]) LockFirst(id ID) bool {
	idx, gen := decodeID(id)
	if idx < 0 || idx >= len(p.slots) {
		return false
	}
	old := p.slots[idx].header.Load()
	if genOf(old) != gen || stateOf(old) != stateReserved {
		return false
	}
	return p.slots[idx].header.CompareAndSwap(old, packHeader(gen, stateAlive, 1))
}

// Lock increments the lock count and returns the slot's value pointer if
// id's generation still matches an ALIVE slot. It is lock-free: a single
// CAS retry loop, no blocking.
func (p *Pool[T]) Lock(id ID) (*T, bool) {
	idx, gen := decodeID(id)
	if idx < 0 || idx >= len(p.slots) {
		return nil, false
	}
	s := &p.slots[idx]
	for {
		old := s.header.Load()
		if genOf(old) != gen || stateOf(old) != stateAlive {
			return nil, false
		}
		nh := packHeader(gen, stateAlive, lockOf(old)+1)
		if s.header.CompareAndSwap(old, nh) {
			return &s.value, true
		}
	}
}

// Unlock decrements the lock count for id. If the count reaches zero while
// the slot is DEAD, destroy (if non-nil) runs exactly once and the slot
// returns to FREE with its generation bumped; Unlock reports whether this
// happened. Dropping to zero while still ALIVE just leaves the slot
// locatable with zero external references — the implicit ownership
// reference is what Destroy later removes.
func (p *Pool[T]) Unlock(id ID, destroy func(*T)) bool {
	idx, gen := decodeID(id)
	if idx < 0 || idx >= len(p.slots) {
		return false
	}
	s := &p.slots[idx]
	for {
		old := s.header.Load()
		if genOf(old) != gen {
			return false
		}
		st := stateOf(old)
		count := lockOf(old)
		if count == 0 {
			return false
		}
		count--
		if count == 0 && st == stateDead {
			nh := packHeader(gen, stateDead, 0)
			if !s.header.CompareAndSwap(old, nh) {
				continue
			}
			if destroy != nil {
				destroy(&s.value)
			}
			nextGen := (gen + 1) & genMask
			s.header.Store(packHeader(nextGen, stateFree, 0))
			p.pushFree(idx)
			return true
		}
		nh := packHeader(gen, st, count)
		if s.header.CompareAndSwap(old, nh) {
			return false
		}
	}
}

// Destroy marks id DEAD, consuming the implicit creator reference if one is
// still outstanding. If no lock is outstanding (the creator's own reference
// included — e.g. it was already dropped via a prior Unlock) this frees the
// slot immediately (running destroy) and reports freed=true; otherwise the
// slot stays DEAD, invisible to new Lock calls, until the remaining Unlock
// calls drain it.
func (p *Pool[T]) Destroy(id ID, destroy func(*T)) (freed, ok bool) {
	idx, gen := decodeID(id)
	if idx < 0 || idx >= len(p.slots) {
		return false, false
	}
	s := &p.slots[idx]
	for {
		old := s.header.Load()
		if genOf(old) != gen || stateOf(old) != stateAlive {
			return false, false
		}
		count := lockOf(old)
		var newCount uint64
		if count > 0 {
			newCount = count - 1
		}
		nh := packHeader(gen, stateDead, newCount)
		if !s.header.CompareAndSwap(old, nh) {
			continue
		}
		if newCount != 0 {
			return false, true
		}
		if destroy != nil {
			destroy(&s.value)
		}
		nextGen := (gen + 1) & genMask
		s.header.Store(packHeader(nextGen, stateFree, 0))
		p.pushFree(idx)
		return true, true
	}
}

// TryDestroyFinal atomically transitions ALIVE -> DEAD only if the lock
// count is exactly one (the implicit creator reference and nothing else),
// then immediately frees the slot. It returns ErrLocked if other locks are
// held, matching the spec's try_unlock_final.
func (p *Pool[T]) TryDestroyFinal(id ID, destroy func(*T)) error {
	idx, gen := decodeID(id)
	if idx < 0 || idx >= len(p.slots) {
		return errors.New("lockfree: invalid id")
	}
	s := &p.slots[idx]
	for {
		old := s.header.Load()
		if genOf(old) != gen || stateOf(old) != stateAlive {
			return errors.New("lockfree: slot not alive")
		}
		if lockOf(old) != 1 {
			return ErrLocked
		}
		nh := packHeader(gen, stateDead, 0)
		if !s.header.CompareAndSwap(old, nh) {
			continue
		}
		if destroy != nil {
			destroy(&s.value)
		}
		nextGen := (gen + 1) & genMask
		s.header.Store(packHeader(nextGen, stateFree, 0))
		p.pushFree(idx)
		return nil
	}
}

// LockCount returns the current lock count for id, or 0 if id is invalid
// or the slot generation no longer matches. Intended for diagnostics/tests.
func (p *Pool[T]) LockCount(id ID) uint64 {
	idx, gen := decodeID(id)
	if idx < 0 || idx >= len(p.slots) {
		return 0
	}
	old := p.slots[idx].header.Load()
	if genOf(old) != gen {
		return 0
	}
	return lockOf(old)
}

// IsAlive reports whether id currently resolves to an ALIVE slot.
func (p *Pool[T]) IsAlive(id ID) bool {
	idx, gen := decodeID(id)
	if idx < 0 || idx >= len(p.slots) {
		return false
	}
	old := p.slots[idx].header.Load()
	return genOf(old) == gen && stateOf(old) == stateAlive
}
