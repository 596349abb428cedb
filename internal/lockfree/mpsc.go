package lockfree

import "sync/atomic"

// mpscNode is a node in an MPSC intrusive queue. next is written by the
// push that retires the node as tail and, when PopMatch splices out the
// node's successor, by the consumer; it is the only field touched by more
// than one goroutine. prev exists purely for the consumer's own
// bookkeeping — it is fixed up as the consumer walks forward and never
// touched by a producer. No operation reads prev to remove a node:
// PopMatch always walks from the head.
type mpscNode[T any] struct {
	next  atomic.Pointer[mpscNode[T]]
	prev  *mpscNode[T]
	value T
}

// MPSC is a multi-producer, single-consumer intrusive queue: any number of
// goroutines may call Push concurrently, but Pop/PopMatch/Empty must only
// ever be called by the single goroutine that owns the queue (the task that
// owns the message queue backing this structure, per the spec).
type MPSC[T any] struct {
	tail atomic.Pointer[mpscNode[T]]
	head *mpscNode[T] // consumer cursor; head.next is the next value to pop
}

// NewMPSC creates an empty queue, seeded with a permanent dummy sentinel so
// push and pop never need to special-case an entirely empty queue.
func NewMPSC[T any]() *MPSC[T] {
	dummy := &mpscNode[T]{}
	q := &MPSC[T]{head: dummy}
	q.tail.Store(dummy)
	return q
}

// Push enqueues value with a single atomic swap on the tail pointer,
// exactly the "single CAS on tail" the spec calls for (Swap is a
// degenerate CAS that always succeeds). Safe for concurrent producers.
func (q *MPSC[T]) Push(value T) {
	n := &mpscNode[T]{value: value}
	prev := q.tail.Swap(n)
	// prev.next is written by exactly one push, the one that retired prev
	// as tail; the consumer's unlink only ever CASes it, so a plain Store is
	// safe here.
	prev.next.Store(n)
}

// Pop removes and returns the value at the front of the queue. It is the
// consumer-only fast path: O(1), no scanning.
func (q *MPSC[T]) Pop() (T, bool) {
	n := q.head.next.Load()
	if n == nil {
		var zero T
		return zero, false
	}
	n.prev = nil
	q.head = n
	return n.value, true
}

// Empty reports whether the queue currently has no elements ready to pop.
// Like Pop, it is accurate only when called by the owning consumer: a
// push that is still mid-flight (swap done, next-link not yet written) can
// make a non-empty queue briefly look empty, exactly as for the MPMC ring —
// liveness in that narrow window is handed to the in-flight producer.
func (q *MPSC[T]) Empty() bool {
	return q.head.next.Load() == nil
}

// PopMatch scans forward from the current head for the first value for
// which match returns true, unlinks it and returns it. It fixes up prev
// pointers as it walks. Returns ok=false if nothing matches, or if the
// matching node was the live tail and a producer raced to link after it.
func (q *MPSC[T]) PopMatch(match func(T) bool) (value T, ok bool) {
	prev := q.head
	for cur := q.head.next.Load(); cur != nil; cur = cur.next.Load() {
		cur.prev = prev
		if match(cur.value) {
			if q.unlink(prev, cur) {
				return cur.value, true
			}
			// Lost a race with a producer retiring cur as tail while we
			// tried to splice it out from under them; the node is still
			// in the queue, just re-scan from here next time.
			return value, false
		}
		prev = cur
	}
	return value, false
}

// unlink removes cur (whose predecessor in the current walk is prev) from
// the chain. If cur has no successor yet it might be the live tail, so
// unlink first tries to retire it via a CAS on the tail pointer; if a
// producer already grabbed cur as the old tail (and is about to, or just
// did, link a new node after it), the CAS fails and unlink backs off
// rather than risk orphaning that producer's node.
func (q *MPSC[T]) unlink(prev, cur *mpscNode[T]) bool {
	next := cur.next.Load()
	if next == nil {
		if !q.tail.CompareAndSwap(cur, prev) {
			return false
		}
	}
	// CAS rather than Store: once tail has been moved back to prev, a
	// producer may already have linked its node after prev, and that link
	// must not be overwritten.
	prev.next.CompareAndSwap(cur, next)
	if next != nil {
		next.prev = prev
	}
	if q.head == cur {
		q.head = prev
	}
	return true
}
