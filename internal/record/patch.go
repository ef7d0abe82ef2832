package record

import (
	"fmt"
	"time"

	"github.com/arlowhite/gitadr/internal/apperr"
)

// Patch is a field-level edit applied through the mutation path. Nil
// pointers and empty slices mean "leave unchanged".
type Patch struct {
	Title       *string
	Status      *Status
	AddTags     []string
	RemoveTags  []string
	AddLinks    []string
	RemoveLinks []string
	Body        *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Status == nil && p.Body == nil &&
		len(p.AddTags) == 0 && len(p.RemoveTags) == 0 &&
		len(p.AddLinks) == 0 && len(p.RemoveLinks) == 0
}

// Validate checks the patch shape independent of any record.
func (p Patch) Validate() error {
	if p.Empty() {
		return fmt.Errorf("patch changes nothing: %w", apperr.ErrInvalidPatch)
	}
	if p.Title != nil && *p.Title == "" {
		return fmt.Errorf("title cannot be empty: %w", apperr.ErrInvalidPatch)
	}
	if p.Status != nil {
		if _, ok := ParseStatus(string(*p.Status)); !ok {
			return fmt.Errorf("unknown status %q: %w", *p.Status, apperr.ErrInvalidPatch)
		}
		// superseded is set by the supersede operation, never by edit.
		if *p.Status == StatusSuperseded {
			return fmt.Errorf("status superseded is set by supersede: %w", apperr.ErrInvalidPatch)
		}
	}
	return nil
}

// Apply applies the patch to a copy of r. It fails with a ConflictError
// (wrapping ErrConcurrentModification) when expectedRevision is stale. On
// success the copy carries revision+1 and a fresh UpdatedAt.
func (r Record) Apply(p Patch, expectedRevision int, now time.Time) (Record, error) {
	if err := p.Validate(); err != nil {
		return Record{}, err
	}
	if expectedRevision != r.Revision {
		return Record{}, &apperr.ConflictError{ID: r.ID, Expected: expectedRevision, Actual: r.Revision}
	}

	out := r.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Body != nil {
		out.Body = *p.Body
	}
	out.Tags = removeFromSet(UnionSet(out.Tags, p.AddTags), p.RemoveTags)
	out.Links = removeFromSet(UnionSet(out.Links, p.AddLinks), p.RemoveLinks)
	out.Revision++
	out.UpdatedAt = now.UTC().Truncate(time.Second)
	return out, nil
}

// Supersede pairs two records: old gets status superseded and points
// forward at new; new points back at old. Both copies are returned for a
// single atomic persist; callers must commit both or neither.
func Supersede(old, new Record, now time.Time) (Record, Record) {
	o := old.Clone()
	n := new.Clone()
	o.Status = StatusSuperseded
	o.SupersededBy = n.ID
	o.Revision++
	o.UpdatedAt = now.UTC().Truncate(time.Second)
	n.Supersedes = o.ID
	return o, n
}
