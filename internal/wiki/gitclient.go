package wiki

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arlowhite/gitadr/internal/apperr"
	"github.com/arlowhite/gitadr/internal/gitx"
)

// Platform names a wiki hosting flavor.
type Platform string

const (
	PlatformGitHub  Platform = "github"
	PlatformGitLab  Platform = "gitlab"
	PlatformUnknown Platform = ""
)

// DetectPlatform guesses the hosting platform from a remote URL.
func DetectPlatform(remoteURL string) Platform {
	switch {
	case strings.Contains(remoteURL, "github.com"):
		return PlatformGitHub
	case strings.Contains(remoteURL, "gitlab"):
		return PlatformGitLab
	}
	return PlatformUnknown
}

// WikiURL derives the wiki repository URL from a project remote URL.
// Both GitHub and GitLab expose the wiki as "<project>.wiki.git".
func WikiURL(remoteURL string) (string, error) {
	if remoteURL == "" {
		return "", fmt.Errorf("no remote URL to derive a wiki from")
	}
	base := strings.TrimSuffix(remoteURL, ".git")
	return base + ".wiki.git", nil
}

// GitClient syncs pages with a git-hosted wiki repository by cloning it
// into a scratch directory per operation.
type GitClient struct {
	url string
}

// NewGitClient returns a client for the wiki repo at url.
func NewGitClient(url string) *GitClient {
	return &GitClient{url: url}
}

// Pull clones the wiki and returns its markdown pages.
func (c *GitClient) Pull(ctx context.Context) (map[string][]byte, error) {
	dir, cleanup, err := c.clone(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	pages := map[string][]byte{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), pageSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		pages[e.Name()] = data
	}
	return pages, nil
}

// Push clones the wiki, replaces the record pages, and pushes a commit.
// Pages not shaped like record ids are left alone so hand-written wiki
// content survives.
func (c *GitClient) Push(ctx context.Context, pages map[string][]byte) error {
	dir, cleanup, err := c.clone(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	repo := gitx.At(dir)

	// Drop record pages that no longer exist.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, pageSuffix) {
			continue
		}
		if _, keep := pages[name]; keep {
			continue
		}
		if isRecordPage(name) {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return err
			}
		}
	}
	for name, data := range pages {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
		}
	}

	if _, err := repo.Run(ctx, "add", "-A"); err != nil {
		return err
	}
	out, err := repo.Run(ctx, "status", "--porcelain")
	if err != nil {
		return err
	}
	if len(out) == 0 {
		return nil // nothing changed
	}
	// The scratch clone has no user identity of its own.
	if _, err := repo.Run(ctx, "-c", "user.name=gadr", "-c", "user.email=gadr@localhost",
		"commit", "-m", "gadr: wiki sync"); err != nil {
		return err
	}
	if _, err := repo.Run(ctx, "push", "origin", "HEAD"); err != nil {
		return fmt.Errorf("pushing wiki: %w: %v", apperr.ErrTransport, err)
	}
	return nil
}

func (c *GitClient) clone(ctx context.Context) (string, func(), error) {
	dir, err := os.MkdirTemp("", "gadr-wiki-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(dir) }
	if _, err := gitx.At(dir).Run(ctx, "clone", "--depth", "1", c.url, "."); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("cloning wiki %s: %w: %v", c.url, apperr.ErrTransport, err)
	}
	return dir, cleanup, nil
}

// isRecordPage reports whether a page name looks like "<record-id>.md".
func isRecordPage(name string) bool {
	id := strings.TrimSuffix(name, pageSuffix)
	if len(id) < 10 || id[8] != '-' {
		return false
	}
	for _, c := range id[:8] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
