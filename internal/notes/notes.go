// Package notes abstracts the side-channel note namespace: a key-value
// store mapping record ids to note bytes, independent of the tracked file
// tree.
//
// Two implementations exist:
//   - Memory: in-process map, used by tests and as a fault-injection seam.
//   - Git: a git ref whose tip commit's tree maps id -> blob, the same
//     layout git uses for notes refs. Batch writes commit once and update
//     the ref with a compare-and-swap, so they are all-or-nothing.
//
// Keys starting with "." are reserved for internal bookkeeping (the sync
// baseline); record ids always start with a digit so the ranges cannot
// collide.
package notes

import "context"

// Namespace is the KV contract the record store and sync engine are built
// against. All writes are durable when the call returns.
type Namespace interface {
	// Get returns the note bytes for a key. Missing keys fail with
	// apperr.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes one note.
	Put(ctx context.Context, key string, data []byte) error

	// PutBatch writes several notes as a single atomic unit: either all
	// entries become visible or none do. A nil value deletes the key.
	PutBatch(ctx context.Context, entries map[string][]byte) error

	// Delete removes a note. Deleting a missing key fails with
	// apperr.ErrNotFound.
	Delete(ctx context.Context, key string) error

	// List returns a snapshot of all notes, keyed by id. Reserved keys
	// (leading ".") are included; callers filter as needed.
	List(ctx context.Context) (map[string][]byte, error)
}
