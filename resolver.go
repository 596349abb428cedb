package prs

import "hash/fnv"

// nameSlot is one entry in the resolver's fixed-capacity open-addressed
// table.
type nameSlot struct {
	used bool
	name string
	id   ObjectID
}

// Resolver maps task/scheduler/object names to ObjectIDs using a
// fixed-capacity open-addressing hash table (linear probing), per spec
// §4.11. Names are unique process-wide: Alloc rejects a collision rather
// than overwriting. dir, if non-nil, backs FindAndLock's directory-aware
// lookup; a Resolver used only for name<->id bookkeeping can leave it nil.
type Resolver struct {
	slots []nameSlot
	mask  uint64
	dir   *Directory
}

// NewResolver creates a resolver with room for capacity entries, rounded
// up to the next power of two, resolving names through dir.
func NewResolver(capacity int, dir *Directory) *Resolver {
	n := nextPow2(capacity)
	return &Resolver{slots: make([]nameSlot, n), mask: uint64(n - 1), dir: dir}
}

func hashName(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// Alloc reserves name -> id. Returns AlreadyExists if name is already
// bound, OutOfMemory if the table is full.
func (r *Resolver) Alloc(name string, id ObjectID) Status {
	return r.insert(name, id)
}

func (r *Resolver) insert(name string, id ObjectID) Status {
	start := hashName(name) & r.mask
	for i := uint64(0); i <= r.mask; i++ {
		idx := (start + i) & r.mask
		s := &r.slots[idx]
		if !s.used {
			s.used, s.name, s.id = true, name, id
			return OK
		}
		if s.name == name {
			return AlreadyExists
		}
	}
	return OutOfMemory
}

// Find resolves name to its bound ObjectID.
func (r *Resolver) Find(name string) (ObjectID, bool) {
	start := hashName(name) & r.mask
	for i := uint64(0); i <= r.mask; i++ {
		idx := (start + i) & r.mask
		s := &r.slots[idx]
		if !s.used {
			return 0, false
		}
		if s.name == name {
			return s.id, true
		}
	}
	return 0, false
}

// FindAndLock resolves name to its bound object through the directory,
// per spec §4.11: the entry inherits the referenced object's lifetime by
// locking it (bumping its directory lock count) rather than handing back
// a bare ObjectID the object could already have outlived. The caller must
// call Directory.Unlock on the id obtained from Find exactly once it's
// done with the returned object. Returns ok=false if name is unbound or
// the id it resolves to no longer refers to a live object.
func (r *Resolver) FindAndLock(name string) (object any, ops Ops, ok bool) {
	id, ok := r.Find(name)
	if !ok {
		return nil, nil, false
	}
	return r.dir.Find(id)
}

// Remove unbinds name, if present, repairing the probe chain behind it so
// later Find calls for names further down the same chain still resolve.
func (r *Resolver) Remove(name string) {
	start := hashName(name) & r.mask
	var idx uint64
	found := false
	for i := uint64(0); i <= r.mask; i++ {
		idx = (start + i) & r.mask
		s := &r.slots[idx]
		if !s.used {
			return
		}
		if s.name == name {
			found = true
			break
		}
	}
	if !found {
		return
	}
	r.slots[idx] = nameSlot{}
	// Standard open-addressing deletion: walk the rest of the cluster and
	// reinsert every entry, since some of them may have probed past the
	// slot we just freed.
	j := idx
	for {
		j = (j + 1) & r.mask
		s := r.slots[j]
		if !s.used {
			return
		}
		r.slots[j] = nameSlot{}
		r.insert(s.name, s.id)
	}
}

// Cap returns the resolver's fixed capacity.
func (r *Resolver) Cap() int { return len(r.slots) }

func nextPow2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
