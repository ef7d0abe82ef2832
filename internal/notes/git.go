package notes

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arlowhite/gitadr/internal/apperr"
	"github.com/arlowhite/gitadr/internal/gitx"
)

// Git stores notes under a ref in the host repository. The ref points at
// a commit whose tree maps key -> blob; every write produces a new commit
// and moves the ref with a compare-and-swap, so concurrent writers from
// other processes fail cleanly instead of losing updates.
type Git struct {
	repo *gitx.Repo
	ref  string
}

// NewGit returns a namespace stored under ref (e.g. "refs/notes/adr") in
// the given repository.
func NewGit(repo *gitx.Repo, ref string) *Git {
	return &Git{repo: repo, ref: ref}
}

// Ref returns the namespace ref.
func (g *Git) Ref() string { return g.ref }

func (g *Git) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := g.repo.Run(ctx, "cat-file", "blob", g.ref+":"+key)
	if err != nil {
		return nil, fmt.Errorf("note %s: %w", key, apperr.ErrNotFound)
	}
	return data, nil
}

func (g *Git) Put(ctx context.Context, key string, data []byte) error {
	return g.PutBatch(ctx, map[string][]byte{key: data})
}

func (g *Git) Delete(ctx context.Context, key string) error {
	if _, err := g.Get(ctx, key); err != nil {
		return err
	}
	return g.PutBatch(ctx, map[string][]byte{key: nil})
}

// PutBatch stages all entries on a private index, writes one commit, and
// moves the ref with update-ref old-value verification. Either the whole
// batch lands or the ref is untouched; this is what makes the two-record
// supersede all-or-nothing.
func (g *Git) PutBatch(ctx context.Context, entries map[string][]byte) error {
	oldTip := g.repo.HeadCommit(ctx, g.ref)

	newTip, err := g.commitEntries(ctx, oldTip, entries, "gadr: update "+g.ref)
	if err != nil {
		return err
	}

	// Compare-and-swap: refuse if another process moved the ref since we
	// read it. An empty old value means "the ref must not exist yet".
	if _, err := g.repo.Run(ctx, "update-ref", g.ref, newTip, oldTip); err != nil {
		return fmt.Errorf("committing notes batch: %w", err)
	}
	return nil
}

func (g *Git) List(ctx context.Context) (map[string][]byte, error) {
	return g.SnapshotAt(ctx, g.ref)
}

// SnapshotAt reads the full key -> bytes state at any commit-ish (the
// namespace ref, a fetched remote tip, ...). A missing ref yields an
// empty snapshot.
func (g *Git) SnapshotAt(ctx context.Context, commitish string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	if _, ok := g.repo.ResolveRef(ctx, commitish); !ok {
		return out, nil
	}

	listing, err := g.repo.Run(ctx, "ls-tree", "-r", "-z", commitish)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", commitish, err)
	}

	var shas []string
	var keys []string
	for _, entry := range strings.Split(string(listing), "\x00") {
		if entry == "" {
			continue
		}
		// Format: <mode> SP <type> SP <sha> TAB <path>
		meta, path, ok := strings.Cut(entry, "\t")
		if !ok {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) != 3 || fields[1] != "blob" {
			continue
		}
		shas = append(shas, fields[2])
		keys = append(keys, path)
	}
	if len(shas) == 0 {
		return out, nil
	}

	contents, err := g.catFileBatch(ctx, shas)
	if err != nil {
		return nil, err
	}
	for i, sha := range shas {
		out[keys[i]] = contents[sha]
	}
	return out, nil
}

// CommitState writes the full desired state as one commit with the given
// parent ("" for a root commit) and returns the commit hash without
// moving any ref. The remote transport uses this to stage a push.
func (g *Git) CommitState(ctx context.Context, parent string, state map[string][]byte, message string) (string, error) {
	return g.commitTree(ctx, parent, func(indexEnv []string) error {
		if _, err := g.repo.RunEnv(ctx, indexEnv, nil, "read-tree", "--empty"); err != nil {
			return err
		}
		return g.stageEntries(ctx, indexEnv, state)
	}, message)
}

func (g *Git) commitEntries(ctx context.Context, parent string, entries map[string][]byte, message string) (string, error) {
	return g.commitTree(ctx, parent, func(indexEnv []string) error {
		if parent != "" {
			if _, err := g.repo.RunEnv(ctx, indexEnv, nil, "read-tree", parent); err != nil {
				return err
			}
		} else {
			if _, err := g.repo.RunEnv(ctx, indexEnv, nil, "read-tree", "--empty"); err != nil {
				return err
			}
		}
		return g.stageEntries(ctx, indexEnv, entries)
	}, message)
}

func (g *Git) commitTree(ctx context.Context, parent string, stage func(indexEnv []string) error, message string) (string, error) {
	indexFile, err := os.CreateTemp("", "gadr-index-*")
	if err != nil {
		return "", fmt.Errorf("creating staging index: %w", err)
	}
	indexPath := indexFile.Name()
	indexFile.Close()
	os.Remove(indexPath) // git recreates it; an existing empty file confuses read-tree
	defer os.Remove(indexPath)

	indexEnv := []string{"GIT_INDEX_FILE=" + filepath.Clean(indexPath)}
	if err := stage(indexEnv); err != nil {
		return "", fmt.Errorf("staging notes: %w", err)
	}

	treeOut, err := g.repo.RunEnv(ctx, indexEnv, nil, "write-tree")
	if err != nil {
		return "", fmt.Errorf("writing notes tree: %w", err)
	}
	tree := strings.TrimSpace(string(treeOut))

	args := []string{"commit-tree", tree, "-m", message}
	if parent != "" {
		args = append(args, "-p", parent)
	}
	commitOut, err := g.repo.Run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("committing notes tree: %w", err)
	}
	return strings.TrimSpace(string(commitOut)), nil
}

func (g *Git) stageEntries(ctx context.Context, indexEnv []string, entries map[string][]byte) error {
	for key, data := range entries {
		if data == nil {
			if _, err := g.repo.RunEnv(ctx, indexEnv, nil, "update-index", "--force-remove", "--", key); err != nil {
				return err
			}
			continue
		}
		shaOut, err := g.repo.RunInput(ctx, data, "hash-object", "-w", "--stdin")
		if err != nil {
			return err
		}
		sha := strings.TrimSpace(string(shaOut))
		if _, err := g.repo.RunEnv(ctx, indexEnv, nil, "update-index", "--add", "--cacheinfo", "100644,"+sha+","+key); err != nil {
			return err
		}
	}
	return nil
}

// catFileBatch retrieves many blobs in one subprocess call, the same
// batching trick the list path needs to avoid N+1 process spawns.
func (g *Git) catFileBatch(ctx context.Context, shas []string) (map[string][]byte, error) {
	input := strings.Join(shas, "\n") + "\n"
	out, err := g.repo.RunInput(ctx, []byte(input), "cat-file", "--batch")
	if err != nil {
		return nil, fmt.Errorf("reading note blobs: %w", err)
	}

	contents := make(map[string][]byte, len(shas))
	rest := out
	for len(rest) > 0 {
		nl := bytes.IndexByte(rest, '\n')
		if nl < 0 {
			break
		}
		header := string(rest[:nl])
		rest = rest[nl+1:]
		fields := strings.Fields(header)
		if len(fields) != 3 || fields[1] != "blob" {
			return nil, fmt.Errorf("unexpected cat-file header %q", header)
		}
		var size int
		if _, err := fmt.Sscanf(fields[2], "%d", &size); err != nil {
			return nil, fmt.Errorf("parsing blob size in %q: %w", header, err)
		}
		if size > len(rest) {
			return nil, fmt.Errorf("truncated cat-file output for %s", fields[0])
		}
		contents[fields[0]] = append([]byte(nil), rest[:size]...)
		rest = rest[size:]
		if len(rest) > 0 && rest[0] == '\n' {
			rest = rest[1:]
		}
	}
	return contents, nil
}
