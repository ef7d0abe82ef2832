package notes

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/arlowhite/gitadr/internal/apperr"
	"github.com/arlowhite/gitadr/internal/gitx"
)

func TestMemoryBasics(t *testing.T) {
	ctx := context.Background()
	ns := NewMemory()

	if _, err := ns.Get(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get missing: err = %v, want ErrNotFound", err)
	}

	if err := ns.Put(ctx, "a", []byte("one")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	data, err := ns.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != "one" {
		t.Errorf("Get = %q, want one", data)
	}

	// Returned slices are copies.
	data[0] = 'X'
	again, _ := ns.Get(ctx, "a")
	if string(again) != "one" {
		t.Errorf("stored note mutated through returned slice: %q", again)
	}

	if err := ns.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := ns.Delete(ctx, "a"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Delete missing: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryPutBatch(t *testing.T) {
	ctx := context.Background()
	ns := NewMemory()
	if err := ns.Put(ctx, "stale", []byte("x")); err != nil {
		t.Fatal(err)
	}

	err := ns.PutBatch(ctx, map[string][]byte{
		"a":     []byte("one"),
		"b":     []byte("two"),
		"stale": nil,
	})
	if err != nil {
		t.Fatalf("PutBatch failed: %v", err)
	}

	all, err := ns.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List returned %d notes, want 2", len(all))
	}
	if string(all["a"]) != "one" || string(all["b"]) != "two" {
		t.Errorf("List = %v", all)
	}
}

// setupGitRepo initializes a throwaway git repository, skipping when git
// is not installed.
func setupGitRepo(t *testing.T) *gitx.Repo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	ctx := context.Background()
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "test"},
	} {
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}

	repo, err := gitx.Open(dir)
	if err != nil {
		t.Fatalf("gitx.Open failed: %v", err)
	}
	return repo
}

func TestGitNamespace(t *testing.T) {
	repo := setupGitRepo(t)
	ctx := context.Background()
	ns := NewGit(repo, "refs/notes/adr-test")

	// Empty namespace lists empty.
	all, err := ns.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("fresh namespace has %d notes", len(all))
	}

	if err := ns.Put(ctx, "20250115-first", []byte("hello\n")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	data, err := ns.Get(ctx, "20250115-first")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != "hello\n" {
		t.Errorf("Get = %q", data)
	}

	// Batch write is visible as a unit.
	err = ns.PutBatch(ctx, map[string][]byte{
		"20250115-second": []byte("two"),
		"20250115-third":  []byte("three"),
	})
	if err != nil {
		t.Fatalf("PutBatch failed: %v", err)
	}
	all, err = ns.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List returned %d notes, want 3", len(all))
	}

	if err := ns.Delete(ctx, "20250115-second"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := ns.Get(ctx, "20250115-second"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get deleted: err = %v, want ErrNotFound", err)
	}

	// Each write is a commit with the previous tip as parent.
	if tip := repo.HeadCommit(ctx, "refs/notes/adr-test"); tip == "" {
		t.Error("namespace ref missing after writes")
	}
}

func TestGitNamespaceBinarySafe(t *testing.T) {
	repo := setupGitRepo(t)
	ctx := context.Background()
	ns := NewGit(repo, "refs/notes/adr-test")

	blob := []byte{0, 1, 2, '\n', 0xff, 0xfe, '\n', '\n', 7}
	if err := ns.Put(ctx, "blobkey", blob); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := ns.Get(ctx, "blobkey")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(blob) {
		t.Errorf("binary round trip mismatch: %v vs %v", got, blob)
	}

	all, err := ns.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if string(all["blobkey"]) != string(blob) {
		t.Errorf("List binary mismatch: %v", all["blobkey"])
	}
}
