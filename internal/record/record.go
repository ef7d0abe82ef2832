// Package record defines the ADR entity: its fields, status values,
// identity rules, patch semantics, and the canonical text encoding stored
// as one note per record.
package record

import (
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of a record. Transitions are plain
// overwrites: any status may follow any status. The one exception is
// StatusSuperseded, which is set by the supersede operation on the old
// record and is rejected by Patch.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusProposed   Status = "proposed"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusDeprecated Status = "deprecated"
	StatusSuperseded Status = "superseded"
)

// Statuses lists all valid status values in display order.
var Statuses = []Status{
	StatusDraft,
	StatusProposed,
	StatusAccepted,
	StatusRejected,
	StatusDeprecated,
	StatusSuperseded,
}

// Attachment is the metadata reference to a content-addressed blob. The
// bytes live in the content store; the record owns only this reference.
type Attachment struct {
	// Name is the display filename, unique within the owning record.
	Name string

	// ContentHash is the hex BLAKE3-256 digest of the stored bytes and
	// the primary lookup key in the content store.
	ContentHash string

	// Size is the byte length of the blob.
	Size int64

	// MimeType is guessed from the filename at attach time.
	MimeType string

	// AltText is optional alternative text (for images).
	AltText string
}

// Record is a single Architecture Decision Record.
type Record struct {
	// ID has the form YYYYMMDD-slug[-N] and is immutable once created.
	ID string

	// Title is the display text. The slug is derived from the title at
	// creation time only; later title edits do not change the id.
	Title string

	// Date is the creation date (UTC midnight).
	Date time.Time

	Status Status

	// Tags is a case-sensitively deduplicated, sorted set.
	Tags []string

	// Links is the sorted set of commit identifiers this record
	// references. Commit ids are opaque strings.
	Links []string

	// Supersedes and SupersededBy are optional back-references to other
	// record ids, kept consistent in pairs by the supersede operation.
	Supersedes   string
	SupersededBy string

	// Revision increases by one on every persisted mutation and is the
	// optimistic-concurrency token.
	Revision int

	// UpdatedAt is set on every mutation (UTC, second precision).
	UpdatedAt time.Time

	// Attachments preserves attach order.
	Attachments []Attachment

	// Body is the opaque template-rendered payload. The core never
	// interprets it.
	Body string

	// Extra holds frontmatter keys this version does not recognize.
	// They survive deserialize/serialize unchanged so newer writers can
	// round-trip through older ones.
	Extra map[string]any
}

// ParseStatus parses a status string case-insensitively.
func ParseStatus(value string) (Status, bool) {
	s := Status(strings.ToLower(value))
	for _, known := range Statuses {
		if s == known {
			return known, true
		}
	}
	return "", false
}

// Clone returns a deep copy. Patches and merges operate on copies so a
// failed operation never leaves a half-modified record behind.
func (r Record) Clone() Record {
	c := r
	c.Tags = append([]string(nil), r.Tags...)
	c.Links = append([]string(nil), r.Links...)
	c.Attachments = append([]Attachment(nil), r.Attachments...)
	if r.Extra != nil {
		c.Extra = make(map[string]any, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// Attachment returns the attachment with the given name, if present.
func (r Record) Attachment(name string) (Attachment, bool) {
	for _, a := range r.Attachments {
		if a.Name == name {
			return a, true
		}
	}
	return Attachment{}, false
}

// normalizeSet sorts and deduplicates (case-sensitive). nil stays nil so
// empty sets serialize identically.
func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// UnionSet merges two sets into normalized form.
func UnionSet(a, b []string) []string {
	return normalizeSet(append(append([]string(nil), a...), b...))
}

// removeFromSet drops the listed values from a normalized set.
func removeFromSet(set, drop []string) []string {
	if len(drop) == 0 {
		return set
	}
	dropped := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		dropped[d] = struct{}{}
	}
	var out []string
	for _, v := range set {
		if _, gone := dropped[v]; !gone {
			out = append(out, v)
		}
	}
	return out
}
