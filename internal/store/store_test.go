package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/arlowhite/gitadr/internal/apperr"
	"github.com/arlowhite/gitadr/internal/blob"
	"github.com/arlowhite/gitadr/internal/notes"
	"github.com/arlowhite/gitadr/internal/record"
)

func fixedClock(s string) func() time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *notes.Memory) {
	t.Helper()
	ns := notes.NewMemory()
	blobs := blob.New(notes.NewMemory(), 0, 0, nil)
	opts = append([]Option{WithClock(fixedClock("2024-03-15T10:00:00Z"))}, opts...)
	return New(ns, blobs, opts...), ns
}

func TestCreateAndGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "Use Postgres", CreateOptions{
		Tags: []string{"db"},
		Body: "# Context\n",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "20240315-use-postgres" {
		t.Errorf("ID = %q", created.ID)
	}
	if created.Revision != 1 || created.Status != record.StatusProposed {
		t.Errorf("defaults: revision=%d status=%s", created.Revision, created.Status)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("round trip mismatch (-created +got):\n%s", diff)
	}
}

func TestCreateCollision(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "Use Postgres", CreateOptions{}); err != nil {
		t.Fatal(err)
	}
	second, err := s.Create(ctx, "Use Postgres", CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != "20240315-use-postgres-2" {
		t.Errorf("collision id = %q, want suffix -2", second.ID)
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Get(context.Background(), "20240101-nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMutate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	r, _ := s.Create(ctx, "Use Postgres", CreateOptions{Tags: []string{"db"}})

	accepted := record.StatusAccepted
	next, err := s.Mutate(ctx, r.ID, record.Patch{
		Status:  &accepted,
		AddTags: []string{"storage"},
	}, r.Revision)
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if next.Revision != 2 || next.Status != record.StatusAccepted {
		t.Errorf("revision=%d status=%s", next.Revision, next.Status)
	}
	if diff := cmp.Diff([]string{"db", "storage"}, next.Tags); diff != "" {
		t.Errorf("tags mismatch:\n%s", diff)
	}

	// Stale revision must surface a conflict without writing.
	_, err = s.Mutate(ctx, r.ID, record.Patch{AddTags: []string{"x"}}, r.Revision)
	var conflict *apperr.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if conflict.Expected != 1 || conflict.Actual != 2 {
		t.Errorf("conflict = %+v", conflict)
	}
	got, _ := s.Get(ctx, r.ID)
	if got.Revision != 2 {
		t.Errorf("record changed after conflict: revision=%d", got.Revision)
	}
}

func TestMutateSerializedPerID(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	r, _ := s.Create(ctx, "Hot record", CreateOptions{})

	// Concurrent mutations against the same id: exactly one should win
	// per revision, so chaining reads inside the lock keeps all writes.
	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				cur, err := s.Get(ctx, r.ID)
				if err != nil {
					errs[i] = err
					return
				}
				_, err = s.Mutate(ctx, r.ID, record.Patch{AddTags: []string{string(rune('a' + i))}}, cur.Revision)
				var conflict *apperr.ConflictError
				if errors.As(err, &conflict) {
					continue
				}
				errs[i] = err
				return
			}
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
	}
	got, _ := s.Get(ctx, r.ID)
	if got.Revision != 1+n {
		t.Errorf("revision = %d, want %d", got.Revision, 1+n)
	}
	if len(got.Tags) != n {
		t.Errorf("tags = %v, want %d entries", got.Tags, n)
	}
}

func TestSupersede(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	old, _ := s.Create(ctx, "Use MySQL", CreateOptions{Status: record.StatusAccepted})

	oldNext, repl, err := s.Supersede(ctx, old.ID, "Use Postgres", CreateOptions{})
	if err != nil {
		t.Fatalf("Supersede: %v", err)
	}
	if oldNext.Status != record.StatusSuperseded || oldNext.SupersededBy != repl.ID {
		t.Errorf("old after supersede: %+v", oldNext)
	}
	if oldNext.Revision != old.Revision+1 {
		t.Errorf("old revision = %d", oldNext.Revision)
	}
	if repl.Supersedes != old.ID {
		t.Errorf("replacement.Supersedes = %q", repl.Supersedes)
	}

	// Both sides must be readable back.
	gotOld, _ := s.Get(ctx, old.ID)
	gotNew, _ := s.Get(ctx, repl.ID)
	if gotOld.SupersededBy != gotNew.ID || gotNew.Supersedes != gotOld.ID {
		t.Errorf("pairing not persisted: old=%+v new=%+v", gotOld, gotNew)
	}

	// Superseding twice is rejected.
	if _, _, err := s.Supersede(ctx, old.ID, "Third try", CreateOptions{}); !errors.Is(err, apperr.ErrInvalidPatch) {
		t.Errorf("second supersede err = %v, want ErrInvalidPatch", err)
	}
}

// failBatchNS wraps a namespace and fails PutBatch, proving supersede
// leaves no partial state behind.
type failBatchNS struct {
	notes.Namespace
}

func (f *failBatchNS) PutBatch(ctx context.Context, entries map[string][]byte) error {
	return errors.New("injected batch failure")
}

func TestSupersedeAtomicOnFailure(t *testing.T) {
	mem := notes.NewMemory()
	blobs := blob.New(notes.NewMemory(), 0, 0, nil)
	s := New(&failBatchNS{Namespace: mem}, blobs, WithClock(fixedClock("2024-03-15T10:00:00Z")))
	ctx := context.Background()

	old, err := s.Create(ctx, "Use MySQL", CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = s.Supersede(ctx, old.ID, "Use Postgres", CreateOptions{})
	if err == nil {
		t.Fatal("expected injected failure")
	}

	got, err := s.Get(ctx, old.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SupersededBy != "" || got.Revision != old.Revision {
		t.Errorf("old record modified despite failed batch: %+v", got)
	}
	state, _ := mem.List(ctx)
	if len(state) != 1 {
		t.Errorf("namespace has %d entries, want 1 (no orphan replacement)", len(state))
	}
}

func TestRemove(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	r, _ := s.Create(ctx, "Short lived", CreateOptions{})

	if err := s.Remove(ctx, r.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Get(ctx, r.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get after remove: %v", err)
	}
	if err := s.Remove(ctx, r.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("double remove: %v", err)
	}
}

func TestAttachAndArtifact(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	r, _ := s.Create(ctx, "With diagram", CreateOptions{})

	data := []byte("not really a png")
	next, err := s.Attach(ctx, r.ID, r.Revision, "diagram.png", data, "context diagram")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if len(next.Attachments) != 1 {
		t.Fatalf("attachments = %v", next.Attachments)
	}
	a := next.Attachments[0]
	if a.Name != "diagram.png" || a.Size != int64(len(data)) || a.AltText != "context diagram" {
		t.Errorf("attachment = %+v", a)
	}
	if a.MimeType != "image/png" {
		t.Errorf("MimeType = %q, want image/png", a.MimeType)
	}
	if a.ContentHash != blob.Hash(data) {
		t.Errorf("ContentHash = %q", a.ContentHash)
	}
	if next.Revision != r.Revision+1 {
		t.Errorf("revision = %d", next.Revision)
	}

	got, meta, err := s.Artifact(ctx, r.ID, "diagram.png")
	if err != nil {
		t.Fatalf("Artifact: %v", err)
	}
	if string(got) != string(data) || meta.Name != "diagram.png" {
		t.Errorf("Artifact returned %q, %+v", got, meta)
	}

	// Same name again collides.
	if _, err := s.Attach(ctx, r.ID, next.Revision, "diagram.png", []byte("other"), ""); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate attach err = %v", err)
	}
	// Stale revision conflicts.
	if _, err := s.Attach(ctx, r.ID, r.Revision, "other.txt", []byte("x"), ""); !errors.Is(err, apperr.ErrConcurrentModification) {
		t.Errorf("stale attach err = %v", err)
	}
}

func TestRemoveAttachment(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	r, _ := s.Create(ctx, "With diagram", CreateOptions{})
	next, _ := s.Attach(ctx, r.ID, r.Revision, "diagram.png", []byte("bytes"), "")

	after, err := s.RemoveAttachment(ctx, r.ID, next.Revision, "diagram.png")
	if err != nil {
		t.Fatalf("RemoveAttachment: %v", err)
	}
	if len(after.Attachments) != 0 {
		t.Errorf("attachments = %v", after.Attachments)
	}
	if _, err := s.RemoveAttachment(ctx, r.ID, after.Revision, "diagram.png"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing attachment err = %v", err)
	}
}

func TestGC(t *testing.T) {
	blobNS := notes.NewMemory()
	blobs := blob.New(blobNS, 0, 0, nil)
	s := New(notes.NewMemory(), blobs, WithClock(fixedClock("2024-03-15T10:00:00Z")))
	ctx := context.Background()

	r, _ := s.Create(ctx, "With diagram", CreateOptions{})
	kept := []byte("kept bytes")
	next, _ := s.Attach(ctx, r.ID, r.Revision, "kept.txt", kept, "")

	// Attach and detach another blob so it becomes unreachable.
	next2, _ := s.Attach(ctx, r.ID, next.Revision, "orphan.txt", []byte("orphan bytes"), "")
	if _, err := s.RemoveAttachment(ctx, r.ID, next2.Revision, "orphan.txt"); err != nil {
		t.Fatal(err)
	}

	removed, err := s.GC(ctx)
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if len(removed) != 1 || removed[0] != blob.Hash([]byte("orphan bytes")) {
		t.Errorf("removed = %v", removed)
	}
	if _, err := blobs.Get(ctx, blob.Hash(kept)); err != nil {
		t.Errorf("kept blob gone: %v", err)
	}
}

func TestRecordsSkipsReservedKeys(t *testing.T) {
	s, ns := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Create(ctx, "Real record", CreateOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := ns.Put(ctx, ".sync-state", []byte("baseline: data")); err != nil {
		t.Fatal(err)
	}

	records, err := s.Records(ctx)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(records) != 1 || !strings.HasSuffix(records[0].ID, "real-record") {
		t.Errorf("records = %v", records)
	}
}

func TestOnChange(t *testing.T) {
	var fired int
	s, _ := newTestStore(t, WithOnChange(func() { fired++ }))
	ctx := context.Background()

	r, _ := s.Create(ctx, "Tracked", CreateOptions{})
	if fired != 1 {
		t.Errorf("after create fired = %d", fired)
	}
	if _, err := s.Mutate(ctx, r.ID, record.Patch{AddTags: []string{"t"}}, r.Revision); err != nil {
		t.Fatal(err)
	}
	if fired != 2 {
		t.Errorf("after mutate fired = %d", fired)
	}
	// Failed mutations must not fire the hook.
	s.Mutate(ctx, r.ID, record.Patch{AddTags: []string{"u"}}, r.Revision)
	if fired != 2 {
		t.Errorf("after failed mutate fired = %d", fired)
	}
}
