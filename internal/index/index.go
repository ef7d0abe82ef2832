// Package index provides derived lookup structures over the full record
// set. The index is never the source of truth: it is rebuilt from the
// note namespace and exposes no write operations.
package index

import (
	"sort"
	"time"

	"github.com/arlowhite/gitadr/internal/record"
)

// Index holds lookup structures for one snapshot of the record set.
type Index struct {
	byID     map[string]record.Record
	byStatus map[record.Status][]string
	byTag    map[string][]string
	byCommit map[string][]string

	// order is all ids in ascending (creation date, id) order, the
	// stable default ordering every query returns.
	order []string
}

// Build constructs an index from the full set of current records.
func Build(records []record.Record) *Index {
	ix := &Index{
		byID:     make(map[string]record.Record, len(records)),
		byStatus: make(map[record.Status][]string),
		byTag:    make(map[string][]string),
		byCommit: make(map[string][]string),
	}
	for _, r := range records {
		ix.byID[r.ID] = r
		ix.byStatus[r.Status] = append(ix.byStatus[r.Status], r.ID)
		for _, tag := range r.Tags {
			ix.byTag[tag] = append(ix.byTag[tag], r.ID)
		}
		for _, commit := range r.Links {
			ix.byCommit[commit] = append(ix.byCommit[commit], r.ID)
		}
		ix.order = append(ix.order, r.ID)
	}
	sort.Slice(ix.order, func(i, j int) bool {
		a, b := ix.byID[ix.order[i]], ix.byID[ix.order[j]]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})
	return ix
}

// Get returns a record by exact id.
func (ix *Index) Get(id string) (record.Record, bool) {
	r, ok := ix.byID[id]
	return r, ok
}

// Len reports the number of indexed records.
func (ix *Index) Len() int { return len(ix.order) }

// Filter selects and orders records for List. Zero values mean "no
// constraint".
type Filter struct {
	Status record.Status
	Tag    string
	Commit string
	Since  time.Time
	Until  time.Time

	// Reverse flips the default ascending (date, id) order.
	Reverse bool

	Offset int
	Limit  int // 0 = unlimited
}

// List returns matching records in a stable, deterministic order:
// ascending creation-date-then-id, descending when Reverse is set.
func (ix *Index) List(f Filter) []record.Record {
	var out []record.Record
	for _, id := range ix.order {
		r := ix.byID[id]
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Tag != "" && !contains(r.Tags, f.Tag) {
			continue
		}
		if f.Commit != "" && !contains(r.Links, f.Commit) {
			continue
		}
		if !f.Since.IsZero() && r.Date.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && r.Date.After(f.Until) {
			continue
		}
		out = append(out, r)
	}
	if f.Reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// ByLinkedCommit returns the records referencing a commit id, in the
// default order.
func (ix *Index) ByLinkedCommit(commit string) []record.Record {
	return ix.List(Filter{Commit: commit})
}

// Stats summarizes the indexed set. Consumed by the stats command and
// report renderers.
type Stats struct {
	Total       int
	ByStatus    map[record.Status]int
	WithLinks   int
	Superseded  int
	Attachments int
}

// Stats computes summary counts over the snapshot.
func (ix *Index) Stats() Stats {
	s := Stats{ByStatus: make(map[record.Status]int)}
	for _, id := range ix.order {
		r := ix.byID[id]
		s.Total++
		s.ByStatus[r.Status]++
		if len(r.Links) > 0 {
			s.WithLinks++
		}
		if r.SupersededBy != "" {
			s.Superseded++
		}
		s.Attachments += len(r.Attachments)
	}
	return s
}

// Tags returns every tag with its usage count.
func (ix *Index) Tags() map[string]int {
	counts := make(map[string]int, len(ix.byTag))
	for tag, ids := range ix.byTag {
		counts[tag] = len(ids)
	}
	return counts
}

// Chain walks the supersede chain starting at id, following
// superseded_by references forward. A visited set guards against the
// reference cycles the store deliberately does not forbid.
func (ix *Index) Chain(id string) []string {
	var chain []string
	visited := make(map[string]struct{})
	for id != "" {
		if _, seen := visited[id]; seen {
			break
		}
		visited[id] = struct{}{}
		r, ok := ix.byID[id]
		if !ok {
			break
		}
		chain = append(chain, id)
		id = r.SupersededBy
	}
	return chain
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
