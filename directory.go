package prs

import (
	"github.com/dexter0/prs-sub001/internal/lockfree"
)

// directoryEntry is what the pool slot actually stores: the object itself
// (type-erased; callers know what they looked up) plus its ops vtable.
type directoryEntry struct {
	object any
	ops    Ops
}

// Directory is the process-wide object directory: a Pool of
// directoryEntry layered with the ops vtable described in the spec's
// §4.2. It never allocates on the hot Find/Unlock path — only
// AllocAndLock and Destroy touch the slower bookkeeping.
type Directory struct {
	pool *lockfree.Pool[directoryEntry]
}

// NewDirectory creates a Directory with the given capacity (power of two).
func NewDirectory(capacity int) *Directory {
	return &Directory{pool: lockfree.New[directoryEntry](capacity)}
}

// AllocAndLock reserves a slot, stores {object, ops}, and performs the
// pool's LockFirst so the returned ID is immediately valid for Find.
func (d *Directory) AllocAndLock(object any, ops Ops) (ObjectID, error) {
	id, err := d.pool.Alloc()
	if err != nil {
		return 0, err
	}
	entry := d.pool.Value(id)
	entry.object = object
	entry.ops = ops
	if !d.pool.LockFirst(id) {
		// Unreachable under correct single-writer use of Alloc, but fail
		// safe rather than hand back a half-published handle.
		return 0, Unknown
	}
	logf(LevelDebug, "directory", 0, 0, nil, "alloc_and_lock id=%d", id)
	return id, nil
}

// Find resolves id to its object and ops, incrementing the slot's lock
// count. The caller must call Unlock exactly once for every successful
// Find. Returns ok=false if id is stale or the slot isn't ALIVE.
func (d *Directory) Find(id ObjectID) (object any, ops Ops, ok bool) {
	entry, ok := d.pool.Lock(id)
	if !ok {
		return nil, nil, false
	}
	return entry.object, entry.ops, true
}

// Unlock releases a reference obtained from Find or AllocAndLock. If this
// was the last reference to a destroyed object, the slot's destructor
// (which runs ops.Free) fires exactly once.
func (d *Directory) Unlock(id ObjectID) {
	d.pool.Unlock(id, freeEntry)
}

func freeEntry(e *directoryEntry) {
	if e.ops != nil {
		e.ops.Free()
	}
	e.object = nil
	e.ops = nil
}

// Destroy marks id DEAD, running ops.Destroy synchronously first, then
// consuming the implicit creator reference from AllocAndLock. If no other
// lock is outstanding the object is freed immediately (ops.Free runs);
// otherwise teardown completes once the remaining Unlock calls drain it.
//
// Destroy is not safe to call twice concurrently for the same id: the
// caller (a single kill-task path or exception handler, in practice) is
// responsible for ensuring only one teardown is ever initiated.
func (d *Directory) Destroy(id ObjectID) bool {
	entry, ok := d.pool.Lock(id)
	if !ok {
		return false
	}
	if entry.ops != nil {
		entry.ops.Destroy()
	}
	d.pool.Unlock(id, nil) // release the Lock we just took to inspect ops
	freed, _ := d.pool.Destroy(id, freeEntry)
	logf(LevelDebug, "directory", 0, 0, nil, "destroy id=%d freed=%v", id, freed)
	return freed
}

// IsAlive reports whether id currently resolves to a live object.
func (d *Directory) IsAlive(id ObjectID) bool { return d.pool.IsAlive(id) }

// Cap returns the directory's fixed capacity.
func (d *Directory) Cap() int { return d.pool.Cap() }
