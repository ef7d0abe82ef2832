// Package apperr defines the error taxonomy shared by the record store,
// content store, and sync engine.
//
// Errors are plain sentinels checked with errors.Is(); operations that need
// to carry structured detail (record id, conflicting revisions) wrap a
// sentinel in one of the typed errors below so callers can errors.As() them.
// The core never formats user-facing text beyond a terse message; rendering
// is the presentation layer's job.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a record id, blob hash, or attachment
	// name does not exist in the namespace.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating something whose key is
	// already taken, such as an attachment name within a record.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidTitle is returned by record creation when a title
	// normalizes to an empty slug.
	ErrInvalidTitle = errors.New("title produces an empty slug")

	// ErrInvalidPatch is returned by mutate when a patch is malformed
	// (unknown status value, empty replacement title, no-op patch).
	ErrInvalidPatch = errors.New("invalid patch")

	// ErrConcurrentModification is returned when a mutation carries a
	// stale expected revision. The caller must re-fetch and retry; the
	// store never retries on its own.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrArtifactTooLarge is returned by the content store when a blob
	// exceeds the configured maximum size.
	ErrArtifactTooLarge = errors.New("artifact exceeds maximum size")

	// ErrDivergedUnresolved is returned when a merge strategy cannot
	// deterministically resolve a diverged record.
	ErrDivergedUnresolved = errors.New("divergence could not be resolved")

	// ErrTransport is returned when the remote or wiki target is
	// unreachable. A transport failure aborts the whole sync invocation.
	ErrTransport = errors.New("transport failure")
)

// ConflictError carries the revision detail of a failed optimistic-
// concurrency check. It wraps ErrConcurrentModification.
type ConflictError struct {
	ID       string
	Expected int
	Actual   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("record %s: expected revision %d, found %d", e.ID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrentModification }

// RecordError attaches a record id and operation name to an underlying
// error so a presentation layer can render a precise message.
type RecordError struct {
	ID  string
	Op  string
	Err error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// SyncFailures collects per-record reconciliation errors from a sync batch.
// It is returned after an otherwise-successful invocation so that sibling
// records still commit (partial-success sync).
type SyncFailures struct {
	Errors []*RecordError
}

func (e *SyncFailures) Error() string {
	parts := make([]string, len(e.Errors))
	for i, re := range e.Errors {
		parts[i] = re.Error()
	}
	return fmt.Sprintf("%d record(s) failed to reconcile: %s", len(e.Errors), strings.Join(parts, "; "))
}

// Add appends a per-record failure.
func (e *SyncFailures) Add(id, op string, err error) {
	e.Errors = append(e.Errors, &RecordError{ID: id, Op: op, Err: err})
}

// Empty reports whether no failures were collected.
func (e *SyncFailures) Empty() bool { return len(e.Errors) == 0 }
