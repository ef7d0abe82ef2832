package sync

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/arlowhite/gitadr/internal/apperr"
	"github.com/arlowhite/gitadr/internal/notes"
)

// baseline records, per remote, the revision of each record at the last
// successful sync. It is the "last common synced revision" divergence
// detection compares against: a side whose revision moved past the
// baseline has changed since the two clones last agreed.
//
// Baselines live in the record namespace under a reserved dot-prefixed
// key so they travel with the repository but never surface as records.
type baseline map[string]int

func baselineKey(remote string) string {
	return ".sync/" + remote
}

func loadBaseline(ctx context.Context, ns notes.Namespace, remote string) (baseline, error) {
	data, err := ns.Get(ctx, baselineKey(remote))
	if errors.Is(err, apperr.ErrNotFound) {
		return baseline{}, nil
	}
	if err != nil {
		return nil, err
	}
	var b baseline
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("corrupt sync baseline for %s: %w", remote, err)
	}
	if b == nil {
		b = baseline{}
	}
	return b, nil
}

// encode serializes the baseline for storage. yaml.v3 emits map keys in
// sorted order, so the encoding is deterministic.
func (b baseline) encode() ([]byte, error) {
	return yaml.Marshal(b)
}
