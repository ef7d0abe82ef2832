// Package blob is the content-addressed store for attachment bytes.
//
// Blobs are keyed by the hex BLAKE3-256 digest of their contents and live
// in their own note namespace (default refs/notes/adr-artifacts),
// separate from record notes. The store knows nothing about records;
// reachability for garbage collection is computed by the caller from
// attachment references.
package blob

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/arlowhite/gitadr/internal/apperr"
	"github.com/arlowhite/gitadr/internal/notes"
)

// Store is a content-addressed blob store over a note namespace.
type Store struct {
	ns notes.Namespace

	// maxSize rejects larger blobs with ErrArtifactTooLarge; 0 disables
	// the limit. warnSize only logs, it never blocks.
	maxSize  int64
	warnSize int64

	logger *log.Logger
}

// New creates a Store. If logger is nil, warnings are dropped.
func New(ns notes.Namespace, maxSize, warnSize int64, logger *log.Logger) *Store {
	return &Store{ns: ns, maxSize: maxSize, warnSize: warnSize, logger: logger}
}

// Hash returns the hex BLAKE3-256 digest used as the blob key.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores data and returns its hash. Idempotent: identical bytes map
// to the same key and are never stored twice.
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	size := int64(len(data))
	if s.maxSize > 0 && size > s.maxSize {
		return "", fmt.Errorf("blob of %d bytes (limit %d): %w", size, s.maxSize, apperr.ErrArtifactTooLarge)
	}
	if s.warnSize > 0 && size > s.warnSize && s.logger != nil {
		s.logger.Printf("WARNING: storing large artifact: %d bytes exceeds warn threshold %d", size, s.warnSize)
	}

	hash := Hash(data)
	if _, err := s.ns.Get(ctx, hash); err == nil {
		return hash, nil
	}
	if err := s.ns.Put(ctx, hash, data); err != nil {
		return "", fmt.Errorf("storing blob %s: %w", hash, err)
	}
	return hash, nil
}

// Get returns the bytes for a hash, verifying the digest on the way out.
func (s *Store) Get(ctx context.Context, hash string) ([]byte, error) {
	data, err := s.ns.Get(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", hash, apperr.ErrNotFound)
	}
	if got := Hash(data); got != hash {
		return nil, fmt.Errorf("blob %s: stored bytes hash to %s", hash, got)
	}
	return data, nil
}

// Has reports whether a blob exists without reading it back out.
func (s *Store) Has(ctx context.Context, hash string) bool {
	_, err := s.ns.Get(ctx, hash)
	return err == nil
}

// GC deletes every blob whose hash is not in reachable and returns the
// removed hashes, sorted. Reads stay safe throughout: the namespace is
// copy-on-write (each delete is a new commit; an in-flight read serves
// the snapshot it started from), so nothing is yanked out from under a
// reader.
func (s *Store) GC(ctx context.Context, reachable map[string]struct{}) ([]string, error) {
	all, err := s.ns.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing blobs for gc: %w", err)
	}

	var doomed []string
	for hash := range all {
		if _, keep := reachable[hash]; !keep {
			doomed = append(doomed, hash)
		}
	}
	sort.Strings(doomed)

	for _, hash := range doomed {
		if err := s.ns.Delete(ctx, hash); err != nil {
			return nil, fmt.Errorf("gc deleting blob %s: %w", hash, err)
		}
		if s.logger != nil {
			s.logger.Printf("gc: removed unreferenced blob %s", hash)
		}
	}
	return doomed, nil
}
