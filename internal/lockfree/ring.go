package lockfree

import "sync/atomic"

// ringNode is allocated from the backing Pool; next is the pool ID of the
// following node (0 meaning "not yet linked"), consumed is CAS'd by
// whichever popper claims the node first.
type ringNode[T any] struct {
	next     atomic.Uint32
	consumed atomic.Bool
	payload  T
}

// Ring is the MPMC linked ring described in the spec's §4.3: a singly
// linked list of nodes drawn from a bounded Pool, used as the runtime's
// log-entry buffer. It is lock-free but not wait-free — a pusher or popper
// can be made to retry arbitrarily many times by concurrent activity,
// though in practice retries are rare and bounded by the number of
// contending goroutines.
type Ring[T any] struct {
	pool *Pool[ringNode[T]]
	head atomic.Uint32 // Pool ID, 0 = empty
	tail atomic.Uint32 // Pool ID, 0 = empty
}

// NewRing creates a ring backed by a pool of the given capacity (must be a
// power of two). Capacity bounds how many entries can be in flight
// (pushed but not yet popped) at once; once exhausted, Push reports
// ErrOutOfMemory and the caller (the log writer) is expected to count the
// drop as an overflow, per the spec's log format.
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{pool: New[ringNode[T]](capacity)}
}

// Push appends payload to the tail of the ring.
func (r *Ring[T]) Push(payload T) error {
	id, err := r.pool.Alloc()
	if err != nil {
		return err
	}
	node := r.pool.Value(id)
	node.payload = payload
	node.next.Store(0)
	node.consumed.Store(false)
	r.pool.LockFirst(id)

	for {
		tailID := ID(r.tail.Load())
		if tailID == 0 {
			if r.tail.CompareAndSwap(0, uint32(id)) {
				r.head.CompareAndSwap(0, uint32(id))
				return nil
			}
			continue
		}
		tailNode, ok := r.pool.Lock(tailID)
		if !ok {
			// The tail handle we observed is already gone (fully popped and
			// recycled); some other push is in the middle of advancing it.
			continue
		}
		next := ID(tailNode.next.Load())
		if next == 0 {
			linked := tailNode.next.CompareAndSwap(0, uint32(id))
			if linked {
				r.tail.CompareAndSwap(uint32(tailID), uint32(id))
			}
			r.pool.Unlock(tailID, nil)
			if linked {
				return nil
			}
			continue
		}
		// The tail pointer is stale relative to the real chain; help it
		// catch up and retry from the (now further along) observed tail.
		r.tail.CompareAndSwap(uint32(tailID), uint32(next))
		r.pool.Unlock(tailID, nil)
	}
}

// Pop removes and returns the node at the head of the ring, or ok=false if
// the ring is empty.
//
// Policy (documented per the spec's open question): if the popper observes
// a node that another popper has already claimed (consumed == true) but
// whose next pointer is not yet linked — because the push that will link
// it hasn't completed — Pop returns ok=false rather than spinning. This
// hands liveness to the in-flight producer: the next Pop call (by anyone)
// will see the link once it completes. The alternative (retry until the
// link appears) was considered and rejected because it can turn a single
// slow producer into an unbounded busy-wait for every concurrent popper.
func (r *Ring[T]) Pop() (T, bool) {
	for {
		headID := ID(r.head.Load())
		if headID == 0 {
			var zero T
			return zero, false
		}
		headNode, ok := r.pool.Lock(headID)
		if !ok {
			// Stale head handle (already recycled by a prior pop); re-read.
			continue
		}
		if headNode.consumed.CompareAndSwap(false, true) {
			payload := headNode.payload
			next := headNode.next.Load()
			r.head.CompareAndSwap(uint32(headID), next)
			r.pool.Unlock(headID, nil)
			r.pool.Destroy(headID, nil)
			return payload, true
		}
		next := headNode.next.Load()
		r.pool.Unlock(headID, nil)
		if next == 0 {
			var zero T
			return zero, false
		}
		r.head.CompareAndSwap(uint32(headID), next)
	}
}

// Cap reports the ring's backing pool capacity, useful for sizing an
// overflow counter against.
func (r *Ring[T]) Cap() int { return r.pool.Cap() }
