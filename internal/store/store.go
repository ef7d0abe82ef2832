// Package store is the local mutation layer for decision records.
//
// Every write goes through here: the store serializes records into the
// note namespace, enforces optimistic concurrency via revisions, and
// keeps multi-record operations (supersede) atomic by batching them
// into a single namespace commit.
package store

import (
	"context"
	"fmt"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arlowhite/gitadr/internal/apperr"
	"github.com/arlowhite/gitadr/internal/blob"
	"github.com/arlowhite/gitadr/internal/notes"
	"github.com/arlowhite/gitadr/internal/record"
)

// Store mediates all local record mutations.
type Store struct {
	ns    notes.Namespace
	blobs *blob.Store

	logger *log.Logger
	now    func() time.Time

	// onChange fires after every successful mutation so cached indexes
	// can invalidate.
	onChange func()

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *log.Logger) Option { return func(s *Store) { s.logger = l } }

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithOnChange registers a hook fired after each successful mutation.
func WithOnChange(fn func()) Option { return func(s *Store) { s.onChange = fn } }

// New creates a Store over a record namespace and a blob store.
func New(ns notes.Namespace, blobs *blob.Store, opts ...Option) *Store {
	s := &Store{
		ns:    ns,
		blobs: blobs,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockFor returns the per-id mutex, creating it on first use. Mutations
// on distinct ids proceed concurrently; mutations on the same id are
// serialized within this process.
func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// CreateOptions carry the optional fields of a new record.
type CreateOptions struct {
	Status record.Status
	Tags   []string
	Links  []string
	Body   string
}

// Create mints a new record. The id is derived from the title and the
// current date, with a numeric suffix on collision.
func (s *Store) Create(ctx context.Context, title string, opts CreateOptions) (record.Record, error) {
	// Creation takes the global lock: id generation must observe every
	// concurrent create's reservation.
	s.mu.Lock()
	defer s.mu.Unlock()

	exists := func(id string) bool {
		_, err := s.ns.Get(ctx, id)
		return err == nil
	}
	r, err := record.New(title, opts.Status, opts.Tags, opts.Links, opts.Body, s.now(), exists)
	if err != nil {
		return record.Record{}, err
	}
	data, err := record.Serialize(r)
	if err != nil {
		return record.Record{}, err
	}
	if err := s.ns.Put(ctx, r.ID, data); err != nil {
		return record.Record{}, &apperr.RecordError{ID: r.ID, Op: "create", Err: err}
	}
	s.changed()
	return r, nil
}

// Get loads one record by id.
func (s *Store) Get(ctx context.Context, id string) (record.Record, error) {
	data, err := s.ns.Get(ctx, id)
	if err != nil {
		return record.Record{}, fmt.Errorf("record %s: %w", id, err)
	}
	return record.Deserialize(data)
}

// Records loads the full current record set. Reserved namespace keys
// (sync baselines and other dot-prefixed entries) are skipped.
func (s *Store) Records(ctx context.Context) ([]record.Record, error) {
	state, err := s.ns.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(state))
	for id := range state {
		if strings.HasPrefix(id, ".") {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]record.Record, 0, len(ids))
	for _, id := range ids {
		r, err := record.Deserialize(state[id])
		if err != nil {
			return nil, &apperr.RecordError{ID: id, Op: "load", Err: err}
		}
		out = append(out, r)
	}
	return out, nil
}

// Mutate applies a patch to a record, guarded by the expected revision.
func (s *Store) Mutate(ctx context.Context, id string, p record.Patch, expectedRevision int) (record.Record, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	cur, err := s.Get(ctx, id)
	if err != nil {
		return record.Record{}, err
	}
	next, err := cur.Apply(p, expectedRevision, s.now())
	if err != nil {
		return record.Record{}, err
	}
	if err := s.put(ctx, next); err != nil {
		return record.Record{}, &apperr.RecordError{ID: id, Op: "mutate", Err: err}
	}
	s.changed()
	return next, nil
}

// Supersede creates a replacement record for oldID and marks the old
// one superseded. Both writes land in one namespace commit: either the
// pairing is fully visible or nothing changed.
func (s *Store) Supersede(ctx context.Context, oldID, title string, opts CreateOptions) (record.Record, record.Record, error) {
	l := s.lockFor(oldID)
	l.Lock()
	defer l.Unlock()

	old, err := s.Get(ctx, oldID)
	if err != nil {
		return record.Record{}, record.Record{}, err
	}
	if old.SupersededBy != "" {
		return record.Record{}, record.Record{}, fmt.Errorf("record %s already superseded by %s: %w",
			oldID, old.SupersededBy, apperr.ErrInvalidPatch)
	}

	now := s.now()
	exists := func(id string) bool {
		_, err := s.ns.Get(ctx, id)
		return err == nil
	}
	repl, err := record.New(title, opts.Status, opts.Tags, opts.Links, opts.Body, now, exists)
	if err != nil {
		return record.Record{}, record.Record{}, err
	}

	oldNext, newNext := record.Supersede(old, repl, now)

	oldData, err := record.Serialize(oldNext)
	if err != nil {
		return record.Record{}, record.Record{}, err
	}
	newData, err := record.Serialize(newNext)
	if err != nil {
		return record.Record{}, record.Record{}, err
	}
	batch := map[string][]byte{oldID: oldData, newNext.ID: newData}
	if err := s.ns.PutBatch(ctx, batch); err != nil {
		return record.Record{}, record.Record{}, &apperr.RecordError{ID: oldID, Op: "supersede", Err: err}
	}
	s.changed()
	return oldNext, newNext, nil
}

// Remove deletes a record. Blobs it referenced become unreachable and
// are reclaimed by the next GC.
func (s *Store) Remove(ctx context.Context, id string) error {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if _, err := s.ns.Get(ctx, id); err != nil {
		return fmt.Errorf("record %s: %w", id, err)
	}
	if err := s.ns.Delete(ctx, id); err != nil {
		return &apperr.RecordError{ID: id, Op: "remove", Err: err}
	}
	s.changed()
	return nil
}

// Attach stores data in the blob store and appends an attachment
// reference to the record. Attachment names are unique per record.
func (s *Store) Attach(ctx context.Context, id string, expectedRevision int, name string, data []byte, altText string) (record.Record, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	cur, err := s.Get(ctx, id)
	if err != nil {
		return record.Record{}, err
	}
	if cur.Revision != expectedRevision {
		return record.Record{}, &apperr.ConflictError{ID: id, Expected: expectedRevision, Actual: cur.Revision}
	}
	for _, a := range cur.Attachments {
		if a.Name == name {
			return record.Record{}, fmt.Errorf("attachment %q on %s: %w", name, id, apperr.ErrAlreadyExists)
		}
	}

	hash, err := s.blobs.Put(ctx, data)
	if err != nil {
		return record.Record{}, err
	}

	next := cur.Clone()
	next.Attachments = append(next.Attachments, record.Attachment{
		Name:        name,
		ContentHash: hash,
		Size:        int64(len(data)),
		MimeType:    guessMime(name, data),
		AltText:     altText,
	})
	next.Revision++
	next.UpdatedAt = s.now().UTC().Truncate(time.Second)

	if err := s.put(ctx, next); err != nil {
		return record.Record{}, &apperr.RecordError{ID: id, Op: "attach", Err: err}
	}
	s.changed()
	return next, nil
}

// RemoveAttachment drops the named attachment reference. The blob
// itself stays until GC finds it unreachable.
func (s *Store) RemoveAttachment(ctx context.Context, id string, expectedRevision int, name string) (record.Record, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	cur, err := s.Get(ctx, id)
	if err != nil {
		return record.Record{}, err
	}
	if cur.Revision != expectedRevision {
		return record.Record{}, &apperr.ConflictError{ID: id, Expected: expectedRevision, Actual: cur.Revision}
	}

	next := cur.Clone()
	kept := next.Attachments[:0]
	found := false
	for _, a := range next.Attachments {
		if a.Name == name {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return record.Record{}, fmt.Errorf("attachment %q on %s: %w", name, id, apperr.ErrNotFound)
	}
	next.Attachments = kept
	if len(next.Attachments) == 0 {
		next.Attachments = nil
	}
	next.Revision++
	next.UpdatedAt = s.now().UTC().Truncate(time.Second)

	if err := s.put(ctx, next); err != nil {
		return record.Record{}, &apperr.RecordError{ID: id, Op: "remove-attachment", Err: err}
	}
	s.changed()
	return next, nil
}

// Artifact returns the bytes and metadata of a named attachment.
func (s *Store) Artifact(ctx context.Context, id, name string) ([]byte, record.Attachment, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, record.Attachment{}, err
	}
	for _, a := range r.Attachments {
		if a.Name == name {
			data, err := s.blobs.Get(ctx, a.ContentHash)
			if err != nil {
				return nil, record.Attachment{}, err
			}
			return data, a, nil
		}
	}
	return nil, record.Attachment{}, fmt.Errorf("attachment %q on %s: %w", name, id, apperr.ErrNotFound)
}

// GC removes every blob not referenced by any current record's
// attachments. Returns the removed blob hashes.
func (s *Store) GC(ctx context.Context) ([]string, error) {
	records, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}
	reachable := make(map[string]struct{})
	for _, r := range records {
		for _, a := range r.Attachments {
			reachable[a.ContentHash] = struct{}{}
		}
	}
	return s.blobs.GC(ctx, reachable)
}

func (s *Store) put(ctx context.Context, r record.Record) error {
	data, err := record.Serialize(r)
	if err != nil {
		return err
	}
	return s.ns.Put(ctx, r.ID, data)
}

// guessMime resolves a content type from the file extension, sniffing
// the bytes when the extension is unknown.
func guessMime(name string, data []byte) string {
	if mt := mime.TypeByExtension(filepath.Ext(name)); mt != "" {
		return mt
	}
	return http.DetectContentType(data)
}
