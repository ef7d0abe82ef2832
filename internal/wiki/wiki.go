// Package wiki mirrors the record set to an external wiki.
//
// The bridge consumes the reconciled record set read-only and renders
// it as a document tree keyed by id (one page per record, canonical
// serialization as content). Pulling brings wiki-side edits back as
// updated records; conflicts reuse the sync engine's merge strategies.
package wiki

import (
	"bytes"
	"context"
	"log"
	"sort"
	"strings"

	"github.com/arlowhite/gitadr/internal/apperr"
	"github.com/arlowhite/gitadr/internal/record"
	"github.com/arlowhite/gitadr/internal/sync"
)

const pageSuffix = ".md"

// Client moves a page tree (name -> content) to and from one wiki.
type Client interface {
	Pull(ctx context.Context) (map[string][]byte, error)
	Push(ctx context.Context, pages map[string][]byte) error
}

// Bridge translates between records and wiki pages.
type Bridge struct {
	client   Client
	strategy sync.Strategy
	logger   *log.Logger
}

// NewBridge creates a bridge using the given conflict strategy.
func NewBridge(client Client, strategy sync.Strategy, logger *log.Logger) *Bridge {
	if strategy == "" {
		strategy = sync.StrategyUnion
	}
	return &Bridge{client: client, strategy: strategy, logger: logger}
}

// Result reports one wiki sync.
type Result struct {
	Pushed int
	Pulled int
	Merged int

	// Updated holds the records changed or created by the pull half,
	// for the caller to persist. The bridge itself never writes to the
	// record namespace.
	Updated []record.Record

	Failures *apperr.SyncFailures
}

// Sync mirrors records against the wiki in the given direction.
func (b *Bridge) Sync(ctx context.Context, records []record.Record, dir sync.Direction) (*Result, error) {
	if dir == "" {
		dir = sync.DirectionBoth
	}
	res := &Result{}
	failures := &apperr.SyncFailures{}

	byID := make(map[string]record.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	if dir != sync.DirectionPush {
		pages, err := b.client.Pull(ctx)
		if err != nil {
			return res, err
		}
		if err := b.pull(pages, byID, res, failures); err != nil {
			return res, err
		}
	}

	if dir != sync.DirectionPull {
		pages := make(map[string][]byte, len(byID))
		for id, r := range byID {
			data, err := record.Serialize(r)
			if err != nil {
				failures.Add(id, "render", err)
				continue
			}
			pages[id+pageSuffix] = data
		}
		if err := b.client.Push(ctx, pages); err != nil {
			return res, err
		}
		res.Pushed = len(pages)
	}

	if !failures.Empty() {
		res.Failures = failures
		return res, failures
	}
	return res, nil
}

// pull folds wiki-side pages into the record map. Pages without a local
// record come in as-is; pages differing from the local copy are merged
// with the configured strategy. Ids are visited in sorted order so
// results are reproducible.
func (b *Bridge) pull(pages map[string][]byte, byID map[string]record.Record, res *Result, failures *apperr.SyncFailures) error {
	names := make([]string, 0, len(pages))
	for name := range pages {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !isRecordPage(name) {
			continue // hand-written wiki content
		}
		id := strings.TrimSuffix(name, pageSuffix)
		theirs, err := record.Deserialize(pages[name])
		if err != nil {
			failures.Add(id, "wiki-pull", err)
			continue
		}

		local, ok := byID[id]
		if !ok {
			byID[id] = theirs
			res.Updated = append(res.Updated, theirs)
			res.Pulled++
			continue
		}

		localData, err := record.Serialize(local)
		if err != nil {
			failures.Add(id, "wiki-pull", err)
			continue
		}
		if bytes.Equal(localData, pages[name]) {
			continue
		}
		merged, err := sync.Merge(b.strategy, local, theirs)
		if err != nil {
			failures.Add(id, "wiki-merge", err)
			continue
		}
		byID[id] = merged
		res.Updated = append(res.Updated, merged)
		res.Merged++
	}
	return nil
}
