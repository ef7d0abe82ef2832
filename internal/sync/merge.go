package sync

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/arlowhite/gitadr/internal/apperr"
	"github.com/arlowhite/gitadr/internal/record"
)

// Strategy selects how diverged records are reconciled.
type Strategy string

const (
	StrategyOurs   Strategy = "ours"
	StrategyTheirs Strategy = "theirs"
	StrategyUnion  Strategy = "union"
)

// ParseStrategy validates a strategy name from config or flags.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(s)) {
	case StrategyOurs:
		return StrategyOurs, nil
	case StrategyTheirs:
		return StrategyTheirs, nil
	case StrategyUnion, "":
		return StrategyUnion, nil
	}
	return "", fmt.Errorf("unknown merge strategy %q", s)
}

// Merge reconciles two diverged copies of the same record. The result
// always carries revision max(local, remote)+1 so both sides converge
// on the merged copy.
//
// Merge is a pure function of its inputs: given the same two records it
// returns the same result on every clone, in either argument order for
// the union strategy.
func Merge(strategy Strategy, local, remote record.Record) (record.Record, error) {
	if local.ID != remote.ID {
		return record.Record{}, fmt.Errorf("merging %s against %s: %w", local.ID, remote.ID, apperr.ErrDivergedUnresolved)
	}
	rev := local.Revision
	if remote.Revision > rev {
		rev = remote.Revision
	}

	var merged record.Record
	switch strategy {
	case StrategyOurs:
		merged = local.Clone()
	case StrategyTheirs:
		merged = remote.Clone()
	case StrategyUnion:
		merged = mergeUnion(local, remote)
	default:
		return record.Record{}, fmt.Errorf("strategy %q: %w", strategy, apperr.ErrDivergedUnresolved)
	}
	merged.Revision = rev + 1
	return merged, nil
}

// mergeUnion is the field-level merge: sets are unioned, attachments are
// unioned by content hash, and single-valued fields come from the
// winning side.
func mergeUnion(local, remote record.Record) record.Record {
	win, lose := pickWinner(local, remote)

	merged := win.Clone()
	merged.Tags = record.UnionSet(win.Tags, lose.Tags)
	merged.Links = record.UnionSet(win.Links, lose.Links)
	merged.Attachments = unionAttachments(win.Attachments, lose.Attachments)
	if merged.Supersedes == "" {
		merged.Supersedes = lose.Supersedes
	}
	if merged.SupersededBy == "" {
		merged.SupersededBy = lose.SupersededBy
	}
	if lose.UpdatedAt.After(merged.UpdatedAt) {
		merged.UpdatedAt = lose.UpdatedAt
	}
	for k, v := range lose.Extra {
		if merged.Extra == nil {
			merged.Extra = make(map[string]any)
		}
		if _, ok := merged.Extra[k]; !ok {
			merged.Extra[k] = v
		}
	}
	return merged
}

// pickWinner orders two copies of a record: higher revision wins, then
// later updated_at, then the lexically greater canonical serialization.
// The last step makes the choice total and symmetric, so no clone ever
// depends on which side it calls "local".
func pickWinner(a, b record.Record) (record.Record, record.Record) {
	if a.Revision != b.Revision {
		if a.Revision > b.Revision {
			return a, b
		}
		return b, a
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		if a.UpdatedAt.After(b.UpdatedAt) {
			return a, b
		}
		return b, a
	}
	ab, aerr := record.Serialize(a)
	bb, berr := record.Serialize(b)
	if aerr == nil && berr == nil && bytes.Compare(ab, bb) > 0 {
		return a, b
	}
	return b, a
}

// unionAttachments keeps the winner's attachments in order, then appends
// the loser's attachments with unseen content hashes. A name taken by a
// different blob gets a numeric suffix before the extension.
func unionAttachments(win, lose []record.Attachment) []record.Attachment {
	out := append([]record.Attachment(nil), win...)
	byHash := make(map[string]struct{}, len(win))
	byName := make(map[string]struct{}, len(win))
	for _, a := range win {
		byHash[a.ContentHash] = struct{}{}
		byName[a.Name] = struct{}{}
	}
	for _, a := range lose {
		if _, ok := byHash[a.ContentHash]; ok {
			continue
		}
		name := a.Name
		for n := 2; ; n++ {
			if _, taken := byName[name]; !taken {
				break
			}
			ext := filepath.Ext(a.Name)
			name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(a.Name, ext), n, ext)
		}
		a.Name = name
		out = append(out, a)
		byHash[a.ContentHash] = struct{}{}
		byName[a.Name] = struct{}{}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
