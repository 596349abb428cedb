package prs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_AllocFindRoundTrip(t *testing.T) {
	r := NewResolver(16, nil)
	assert.Equal(t, OK, r.Alloc("svc.alpha", 1))
	id, ok := r.Find("svc.alpha")
	assert.True(t, ok)
	assert.Equal(t, ObjectID(1), id)
}

// TestResolver_NameCollisionRejected is spec §8 scenario 5.
func TestResolver_NameCollisionRejected(t *testing.T) {
	r := NewResolver(16, nil)
	assert.Equal(t, OK, r.Alloc("svc.alpha", 1))
	assert.Equal(t, AlreadyExists, r.Alloc("svc.alpha", 2))
	id, ok := r.Find("svc.alpha")
	assert.True(t, ok)
	assert.Equal(t, ObjectID(1), id, "the original binding must survive a rejected collision")
}

func TestResolver_FindMissingNotFound(t *testing.T) {
	r := NewResolver(16, nil)
	_, ok := r.Find("nothing")
	assert.False(t, ok)
}

func TestResolver_FullTableReturnsOutOfMemory(t *testing.T) {
	r := NewResolver(4, nil) // rounds up to 4
	for i := 0; i < r.Cap(); i++ {
		require := r.Alloc(fmt.Sprintf("name-%d", i), ObjectID(i+1))
		assert.Equal(t, OK, require)
	}
	assert.Equal(t, OutOfMemory, r.Alloc("one-too-many", 999))
}

func TestResolver_FindAndLockLocksThroughDirectory(t *testing.T) {
	d := NewDirectory(8)
	r := NewResolver(16, d)

	obj := &fakeObject{name: "svc.alpha"}
	id, err := d.AllocAndLock(obj, fakeOps{obj})
	require.NoError(t, err)

	require.Equal(t, OK, r.Alloc("svc.alpha", id))

	got, ops, ok := r.FindAndLock("svc.alpha")
	require.True(t, ok)
	assert.Same(t, obj, got)
	assert.Equal(t, "svc.alpha", ops.Print())

	// Destroy consumes the creator's own implicit AllocAndLock reference;
	// FindAndLock's independent lock is what's left outstanding, so
	// teardown must still defer to it, the same guarantee a direct
	// Directory.Find gives any other caller.
	freed := d.Destroy(id)
	assert.False(t, freed, "destroy must defer while FindAndLock's lock is outstanding")
	d.Unlock(id) // releases FindAndLock's lock, the last one standing
	assert.True(t, obj.freed)
}

func TestResolver_FindAndLockMissingName(t *testing.T) {
	d := NewDirectory(8)
	r := NewResolver(16, d)
	_, _, ok := r.FindAndLock("nothing")
	assert.False(t, ok)
}

func TestResolver_RemoveThenReinsert(t *testing.T) {
	r := NewResolver(8, nil)
	r.Alloc("a", 1)
	r.Alloc("b", 2)
	r.Alloc("c", 3)

	r.Remove("b")
	_, ok := r.Find("b")
	assert.False(t, ok)

	// a and c must still resolve even if they were probed past b's slot.
	idA, ok := r.Find("a")
	assert.True(t, ok)
	assert.Equal(t, ObjectID(1), idA)
	idC, ok := r.Find("c")
	assert.True(t, ok)
	assert.Equal(t, ObjectID(3), idC)

	assert.Equal(t, OK, r.Alloc("b", 20))
	idB, ok := r.Find("b")
	assert.True(t, ok)
	assert.Equal(t, ObjectID(20), idB)
}
