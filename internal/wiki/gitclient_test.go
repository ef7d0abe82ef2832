package wiki

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// setupBareWiki creates a bare repository with one hand-written page,
// standing in for a hosted wiki.
func setupBareWiki(t *testing.T) string {
	t.Helper()
	requireGit(t)

	bare := filepath.Join(t.TempDir(), "wiki.git")
	run := func(dir string, args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	if err := os.MkdirAll(bare, 0o755); err != nil {
		t.Fatal(err)
	}
	run(bare, "init", "--bare", ".")

	seed := t.TempDir()
	run(seed, "clone", bare, ".")
	if err := os.WriteFile(filepath.Join(seed, "Home.md"), []byte("# Wiki home\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run(seed, "add", "-A")
	run(seed, "-c", "user.name=t", "-c", "user.email=t@localhost", "commit", "-m", "seed")
	run(seed, "push", "origin", "HEAD")
	return bare
}

func TestGitClientRoundTrip(t *testing.T) {
	bare := setupBareWiki(t)
	client := NewGitClient(bare)
	ctx := context.Background()

	pages := map[string][]byte{
		"20240110-some-decision.md": mustPage(t, wikiRecord("20240110-some-decision")),
		"20240111-another-one.md":   mustPage(t, wikiRecord("20240111-another-one")),
	}
	if err := client.Push(ctx, pages); err != nil {
		t.Fatalf("Push: %v", err)
	}

	got, err := client.Pull(ctx)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	for name, want := range pages {
		if string(got[name]) != string(want) {
			t.Errorf("page %s differs after round trip", name)
		}
	}
	if _, ok := got["Home.md"]; !ok {
		t.Error("hand-written page lost")
	}

	// A second push without one record page removes it from the wiki
	// but leaves hand-written content alone.
	delete(pages, "20240111-another-one.md")
	if err := client.Push(ctx, pages); err != nil {
		t.Fatalf("second Push: %v", err)
	}
	got, err = client.Pull(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["20240111-another-one.md"]; ok {
		t.Error("removed record page still on wiki")
	}
	if _, ok := got["Home.md"]; !ok {
		t.Error("hand-written page removed by push")
	}
}

func TestGitClientPushNoChanges(t *testing.T) {
	bare := setupBareWiki(t)
	client := NewGitClient(bare)
	ctx := context.Background()

	pages := map[string][]byte{
		"20240110-some-decision.md": mustPage(t, wikiRecord("20240110-some-decision")),
	}
	if err := client.Push(ctx, pages); err != nil {
		t.Fatal(err)
	}
	// Pushing the identical tree is a no-op, not an error.
	if err := client.Push(ctx, pages); err != nil {
		t.Fatalf("idempotent push: %v", err)
	}
}
