package prs

import "github.com/dexter0/prs-sub001/internal/lockfree"

// ObjectID is a process-wide, reference-counted handle into the object
// directory: {index, generation} packed into 32 bits, per the spec's data
// model. The zero value is reserved as invalid.
type ObjectID = lockfree.ID

// Ops is the per-object vtable the directory stores alongside every
// entry: destroy initiates teardown (and may be deferred if other locks
// are outstanding), free runs exactly once on the final 1->0 transition,
// and Print renders a one-line description for diagnostics/logging.
type Ops interface {
	// Destroy initiates teardown of the object. It is called synchronously
	// by Directory.Destroy and must not block on other objects' locks.
	Destroy()
	// Free releases the object's own resources. It runs exactly once,
	// after Destroy, once the directory slot's lock count reaches zero.
	Free()
	// Print renders a one-line description, e.g. for a "list objects"
	// diagnostic or a panic report.
	Print() string
}
