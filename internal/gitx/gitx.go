// Package gitx is a thin command runner for the host git repository.
//
// The note namespace, configuration source, and wiki client all shell out
// to git; this package centralizes command execution, repository discovery,
// and config access so those layers stay free of exec details.
package gitx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrNotInRepo is returned when the working directory is not inside a git
// repository.
var ErrNotInRepo = errors.New("not in a git repository")

// Repo executes git commands against one repository.
type Repo struct {
	// dir is the repository root directory.
	dir string
}

// Open discovers the repository containing path and returns a Repo rooted
// at its top level.
func Open(path string) (*Repo, error) {
	cmd := exec.Command("git", "-C", path, "rev-parse", "--show-toplevel")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInRepo, path)
	}
	return &Repo{dir: strings.TrimSpace(string(out))}, nil
}

// At returns a Repo that runs commands in dir without discovery. Used by
// the wiki client, which operates on a freshly cloned checkout.
func At(dir string) *Repo {
	return &Repo{dir: dir}
}

// Root returns the repository root directory.
func (r *Repo) Root() string { return r.dir }

// Run executes a git command and returns its stdout. On failure the error
// includes the command line and stderr.
func (r *Repo) Run(ctx context.Context, args ...string) ([]byte, error) {
	return r.run(ctx, nil, nil, args...)
}

// RunInput executes a git command feeding input on stdin.
func (r *Repo) RunInput(ctx context.Context, input []byte, args ...string) ([]byte, error) {
	return r.run(ctx, nil, input, args...)
}

// RunEnv executes a git command with extra environment entries appended to
// the inherited environment. The note namespace uses this to point git at
// a private index file.
func (r *Repo) RunEnv(ctx context.Context, env []string, input []byte, args ...string) ([]byte, error) {
	return r.run(ctx, env, input, args...)
}

func (r *Repo) run(ctx context.Context, env []string, input []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	if input != nil {
		cmd.Stdin = bytes.NewReader(input)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("git %s failed: %w\n%s",
			strings.Join(args, " "), err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// ConfigGet reads a git config value. Returns ("", false) when unset.
func (r *Repo) ConfigGet(ctx context.Context, key string) (string, bool) {
	out, err := r.Run(ctx, "config", "--get", key)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(out)), true
}

// ConfigSet writes a git config value in the repository scope.
func (r *Repo) ConfigSet(ctx context.Context, key, value string) error {
	_, err := r.Run(ctx, "config", key, value)
	return err
}

// ConfigAdd appends a multi-valued git config entry if not already present.
func (r *Repo) ConfigAdd(ctx context.Context, key, value string) error {
	out, _ := r.Run(ctx, "config", "--get-all", key)
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) == value {
			return nil
		}
	}
	_, err := r.Run(ctx, "config", "--add", key, value)
	return err
}

// ConfigList returns all config entries under the given section prefix
// (e.g. "adr").
func (r *Repo) ConfigList(ctx context.Context, prefix string) map[string]string {
	out, err := r.Run(ctx, "config", "--get-regexp", "^"+prefix+`\.`)
	entries := make(map[string]string)
	if err != nil {
		return entries
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, " ")
		if !ok {
			key = line
		}
		entries[key] = value
	}
	return entries
}

// Remotes returns the configured remote names.
func (r *Repo) Remotes(ctx context.Context) ([]string, error) {
	out, err := r.Run(ctx, "remote")
	if err != nil {
		return nil, err
	}
	var remotes []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			remotes = append(remotes, line)
		}
	}
	return remotes, nil
}

// RemoteURL returns the URL of the named remote, or "" if unset.
func (r *Repo) RemoteURL(ctx context.Context, remote string) string {
	out, err := r.Run(ctx, "remote", "get-url", remote)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// ResolveRef resolves a ref to a commit hash. Returns ("", false) when the
// ref does not exist.
func (r *Repo) ResolveRef(ctx context.Context, ref string) (string, bool) {
	out, err := r.Run(ctx, "rev-parse", "--verify", "--quiet", ref)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(out)), true
}

// HeadCommit returns the hash of the commit a ref points to, or "" when the
// ref is absent. Convenience wrapper used by the note namespace.
func (r *Repo) HeadCommit(ctx context.Context, ref string) string {
	hash, _ := r.ResolveRef(ctx, ref)
	return hash
}
