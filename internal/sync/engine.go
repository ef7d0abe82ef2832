// Package sync reconciles the local record namespace against a remote
// copy.
//
// One Run is a state machine: Fetching retrieves the full remote
// snapshot, Comparing classifies every id against the persisted
// baseline, Reconciling merges diverged records with the configured
// strategy, and Pushing writes both sides. Transport failures abort the
// invocation with local state untouched; per-record reconciliation
// failures are collected and do not block sibling records.
package sync

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	gosync "sync"

	"golang.org/x/sync/errgroup"

	"github.com/arlowhite/gitadr/internal/apperr"
	"github.com/arlowhite/gitadr/internal/notes"
	"github.com/arlowhite/gitadr/internal/record"
)

// State names the phase a sync invocation is in. The final state is
// reported in Result.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateComparing   State = "comparing"
	StateReconciling State = "reconciling"
	StatePushing     State = "pushing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Direction restricts which half of the exchange executes.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
	DirectionBoth Direction = "both"
)

// ParseDirection validates a direction flag value.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(s)) {
	case DirectionPush:
		return DirectionPush, nil
	case DirectionPull:
		return DirectionPull, nil
	case DirectionBoth, "":
		return DirectionBoth, nil
	}
	return "", fmt.Errorf("unknown sync direction %q", s)
}

// Action is the planned disposition of one record id.
type Action string

const (
	ActionPush   Action = "push"   // local copy sent to the remote
	ActionPull   Action = "pull"   // remote copy applied locally
	ActionSkip   Action = "skip"   // identical on both sides
	ActionMerge  Action = "merge"  // diverged, reconciled by strategy
	ActionDelete Action = "delete" // force overwrite removes this id
)

// Change is one entry of the sync plan.
type Change struct {
	ID     string
	Action Action
}

// Transport moves namespace snapshots to and from one remote. The
// engine only needs "fetch state as a map" and "push a desired state";
// it never sees refs or wire details.
type Transport interface {
	FetchRecords(ctx context.Context) (map[string][]byte, error)
	PushRecords(ctx context.Context, state map[string][]byte, force bool) error
	FetchBlobs(ctx context.Context) (map[string][]byte, error)
	PushBlobs(ctx context.Context, state map[string][]byte, force bool) error
}

// Options configure one sync invocation.
type Options struct {
	Remote    string
	Direction Direction
	Strategy  Strategy

	// DryRun stops after Reconciling and reports the plan without
	// pushing or applying anything.
	DryRun bool

	// Force skips divergence detection and overwrites the target side.
	// Destructive; requires an explicit push or pull direction.
	Force bool

	// Workers bounds concurrent blob transfers. Record reconciliation
	// stays strictly sequential regardless.
	Workers int
}

// Result reports what one invocation did (or, for a dry run, would do).
type Result struct {
	State State
	Plan  []Change

	Pushed  int
	Pulled  int
	Merged  int
	Skipped int

	// Failures holds per-record reconciliation errors. Non-empty
	// failures accompany a Done state: sibling records still committed.
	Failures *apperr.SyncFailures
}

// Engine runs sync invocations over the local namespaces.
type Engine struct {
	records notes.Namespace
	blobs   notes.Namespace
	logger  *log.Logger
}

// NewEngine creates a sync engine over the local record and blob
// namespaces.
func NewEngine(records, blobs notes.Namespace, logger *log.Logger) *Engine {
	return &Engine{records: records, blobs: blobs, logger: logger}
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// Run executes one sync invocation against the transport.
func (e *Engine) Run(ctx context.Context, t Transport, opts Options) (*Result, error) {
	if opts.Direction == "" {
		opts.Direction = DirectionBoth
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyUnion
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Force && opts.Direction == DirectionBoth {
		return &Result{State: StateFailed}, fmt.Errorf("force requires an explicit push or pull direction")
	}

	res := &Result{State: StateFetching}
	fail := func(err error) (*Result, error) {
		res.State = StateFailed
		return res, err
	}

	remoteRaw, err := t.FetchRecords(ctx)
	if err != nil {
		return fail(err)
	}
	localRaw, err := e.localSnapshot(ctx)
	if err != nil {
		return fail(err)
	}
	base, err := loadBaseline(ctx, e.records, opts.Remote)
	if err != nil {
		return fail(err)
	}

	res.State = StateComparing
	failures := &apperr.SyncFailures{}

	var plan *plannedSync
	if opts.Force {
		plan = planForce(localRaw, remoteRaw, opts.Direction)
	} else {
		plan = e.plan(localRaw, remoteRaw, base, opts, failures, res)
	}
	res.Plan = plan.changes
	res.Pushed = len(plan.pushes)
	res.Pulled = len(plan.pulls)
	res.Merged = len(plan.merges)

	if opts.DryRun {
		res.State = StateDone
		if !failures.Empty() {
			res.Failures = failures
			return res, failures
		}
		return res, nil
	}

	// Nothing is committed anywhere before this point, so cancellation
	// up to here has no observable effect.
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	res.State = StatePushing
	if opts.Direction != DirectionPull {
		if err := e.pushSide(ctx, t, plan, opts); err != nil {
			return fail(err)
		}
	}
	if err := e.applyLocal(ctx, t, plan, opts); err != nil {
		return fail(err)
	}

	res.State = StateDone
	if !failures.Empty() {
		res.Failures = failures
		return res, failures
	}
	return res, nil
}

// localSnapshot loads the record namespace minus reserved keys.
func (e *Engine) localSnapshot(ctx context.Context) (map[string][]byte, error) {
	state, err := e.records.List(ctx)
	if err != nil {
		return nil, err
	}
	for key := range state {
		if strings.HasPrefix(key, ".") {
			delete(state, key)
		}
	}
	return state, nil
}

// plannedSync is the finalized decision set for one invocation.
type plannedSync struct {
	changes []Change

	// pushes and pulls hold raw serializations; merges hold the
	// reconciled serializations destined for both sides.
	pushes map[string][]byte
	pulls  map[string][]byte
	merges map[string][]byte

	// remoteDeletes lists ids a force push removes from the remote;
	// localDeletes lists ids a force pull removes locally.
	remoteDeletes []string
	localDeletes  []string

	remoteRaw map[string][]byte
	localRaw  map[string][]byte

	// nextBase is the baseline to persist on success.
	nextBase baseline
}

func newPlan(localRaw, remoteRaw map[string][]byte) *plannedSync {
	return &plannedSync{
		pushes:    map[string][]byte{},
		pulls:     map[string][]byte{},
		merges:    map[string][]byte{},
		localRaw:  localRaw,
		remoteRaw: remoteRaw,
		nextBase:  baseline{},
	}
}

// plan classifies every id and reconciles the diverged ones. Ids are
// visited in sorted order so plans and merge results are reproducible.
func (e *Engine) plan(localRaw, remoteRaw map[string][]byte, base baseline, opts Options, failures *apperr.SyncFailures, res *Result) *plannedSync {
	p := newPlan(localRaw, remoteRaw)

	ids := unionKeys(localRaw, remoteRaw)
	type diverged struct {
		id            string
		local, remote record.Record
	}
	var toMerge []diverged

	for _, id := range ids {
		localData, hasLocal := localRaw[id]
		remoteData, hasRemote := remoteRaw[id]

		switch {
		case hasLocal && !hasRemote:
			local, err := record.Deserialize(localData)
			if err != nil {
				failures.Add(id, "compare", err)
				continue
			}
			p.add(id, ActionPush, localData)
			if opts.Direction != DirectionPull {
				p.nextBase[id] = local.Revision
			} else if rev, ok := base[id]; ok {
				p.nextBase[id] = rev
			}

		case !hasLocal && hasRemote:
			remote, err := record.Deserialize(remoteData)
			if err != nil {
				failures.Add(id, "compare", err)
				continue
			}
			p.add(id, ActionPull, remoteData)
			if opts.Direction != DirectionPush {
				p.nextBase[id] = remote.Revision
			} else if rev, ok := base[id]; ok {
				p.nextBase[id] = rev
			}

		case bytes.Equal(localData, remoteData):
			local, err := record.Deserialize(localData)
			if err != nil {
				failures.Add(id, "compare", err)
				continue
			}
			p.changes = append(p.changes, Change{ID: id, Action: ActionSkip})
			res.Skipped++
			p.nextBase[id] = local.Revision

		default:
			local, lerr := record.Deserialize(localData)
			remote, rerr := record.Deserialize(remoteData)
			if lerr != nil || rerr != nil {
				if lerr != nil {
					failures.Add(id, "compare", lerr)
				} else {
					failures.Add(id, "compare", rerr)
				}
				if rev, ok := base[id]; ok {
					p.nextBase[id] = rev
				}
				continue
			}
			common := base[id]
			localChanged := local.Revision > common
			remoteChanged := remote.Revision > common
			switch {
			case localChanged && !remoteChanged:
				p.add(id, ActionPush, localData)
				if opts.Direction != DirectionPull {
					p.nextBase[id] = local.Revision
				} else {
					p.nextBase[id] = common
				}
			case remoteChanged && !localChanged:
				p.add(id, ActionPull, remoteData)
				if opts.Direction != DirectionPush {
					p.nextBase[id] = remote.Revision
				} else {
					p.nextBase[id] = common
				}
			default:
				toMerge = append(toMerge, diverged{id: id, local: local, remote: remote})
			}
		}
	}

	if len(toMerge) > 0 {
		res.State = StateReconciling
	}
	for _, d := range toMerge {
		merged, err := Merge(opts.Strategy, d.local, d.remote)
		if err != nil {
			failures.Add(d.id, "reconcile", err)
			if rev, ok := base[d.id]; ok {
				p.nextBase[d.id] = rev
			}
			continue
		}
		data, err := record.Serialize(merged)
		if err != nil {
			failures.Add(d.id, "reconcile", err)
			continue
		}
		p.add(d.id, ActionMerge, data)
		// Merged records always land locally; whether they also reach
		// the remote depends on direction. The baseline tracks the
		// remote's view so a later push still sees the delta.
		if opts.Direction != DirectionPull {
			p.nextBase[d.id] = merged.Revision
		} else {
			p.nextBase[d.id] = d.remote.Revision
		}
	}
	return p
}

func (p *plannedSync) add(id string, action Action, data []byte) {
	p.changes = append(p.changes, Change{ID: id, Action: action})
	switch action {
	case ActionPush:
		p.pushes[id] = data
	case ActionPull:
		p.pulls[id] = data
	case ActionMerge:
		p.merges[id] = data
	}
}

// planForce bypasses classification: the source side's snapshot becomes
// the target side's exact state, deletions included.
func planForce(localRaw, remoteRaw map[string][]byte, dir Direction) *plannedSync {
	p := newPlan(localRaw, remoteRaw)
	switch dir {
	case DirectionPush:
		for _, id := range unionKeys(localRaw, nil) {
			local, err := record.Deserialize(localRaw[id])
			p.add(id, ActionPush, localRaw[id])
			if err == nil {
				p.nextBase[id] = local.Revision
			}
		}
		for _, id := range unionKeys(remoteRaw, nil) {
			if _, ok := localRaw[id]; !ok {
				p.changes = append(p.changes, Change{ID: id, Action: ActionDelete})
				p.remoteDeletes = append(p.remoteDeletes, id)
			}
		}
	case DirectionPull:
		for _, id := range unionKeys(remoteRaw, nil) {
			remote, err := record.Deserialize(remoteRaw[id])
			p.add(id, ActionPull, remoteRaw[id])
			if err == nil {
				p.nextBase[id] = remote.Revision
			}
		}
		for _, id := range unionKeys(localRaw, nil) {
			if _, ok := remoteRaw[id]; !ok {
				p.changes = append(p.changes, Change{ID: id, Action: ActionDelete})
				p.localDeletes = append(p.localDeletes, id)
			}
		}
	}
	return p
}

// pushSide ships blobs first, then the desired record state, so the
// remote never references a blob it does not hold.
func (e *Engine) pushSide(ctx context.Context, t Transport, plan *plannedSync, opts Options) error {
	desired := make(map[string][]byte, len(plan.remoteRaw))
	for id, data := range plan.remoteRaw {
		desired[id] = data
	}
	for _, id := range plan.remoteDeletes {
		delete(desired, id)
	}
	for id, data := range plan.pushes {
		desired[id] = data
	}
	for id, data := range plan.merges {
		desired[id] = data
	}

	missing, err := e.missingRemoteBlobs(ctx, t, desired, opts.Workers)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		if err := t.PushBlobs(ctx, missing, opts.Force); err != nil {
			return err
		}
	}
	e.logf("sync: pushing %d record(s), %d blob(s) to %s", len(plan.pushes)+len(plan.merges), len(missing), opts.Remote)
	return t.PushRecords(ctx, desired, opts.Force)
}

// missingRemoteBlobs gathers the local blobs the desired remote record
// state references but the remote does not yet hold. Blob reads run on
// a bounded worker pool.
func (e *Engine) missingRemoteBlobs(ctx context.Context, t Transport, desired map[string][]byte, workers int) (map[string][]byte, error) {
	hashes := referencedHashes(desired)
	if len(hashes) == 0 {
		return nil, nil
	}
	remoteBlobs, err := t.FetchBlobs(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu  gosync.Mutex
		out = map[string][]byte{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, hash := range hashes {
		if _, ok := remoteBlobs[hash]; ok {
			continue
		}
		hash := hash
		g.Go(func() error {
			data, err := e.blobs.Get(gctx, hash)
			if err != nil {
				// A record can reference a blob this clone never had,
				// e.g. one attached remotely. Not ours to push.
				return nil
			}
			mu.Lock()
			out[hash] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Keep what the remote already has reachable.
	for hash, data := range remoteBlobs {
		out[hash] = data
	}
	return out, nil
}

// applyLocal commits the pull half: blobs first, then records, merges,
// deletions, and the new baseline in one atomic namespace batch.
func (e *Engine) applyLocal(ctx context.Context, t Transport, plan *plannedSync, opts Options) error {
	batch := map[string][]byte{}
	if opts.Direction != DirectionPush {
		for id, data := range plan.pulls {
			batch[id] = data
		}
		for _, id := range plan.localDeletes {
			batch[id] = nil
		}
	}
	// Merge results land locally under every direction; without them the
	// next invocation would re-diverge on its own merge output.
	for id, data := range plan.merges {
		batch[id] = data
	}

	if err := e.pullBlobs(ctx, t, batch); err != nil {
		return err
	}

	baseData, err := plan.nextBase.encode()
	if err != nil {
		return err
	}
	batch[baselineKey(opts.Remote)] = baseData
	return e.records.PutBatch(ctx, batch)
}

// pullBlobs stores the blobs newly-applied records reference. Runs
// before the record batch so local records never dangle.
func (e *Engine) pullBlobs(ctx context.Context, t Transport, applied map[string][]byte) error {
	hashes := referencedHashes(applied)
	if len(hashes) == 0 {
		return nil
	}
	needed := make([]string, 0, len(hashes))
	for _, hash := range hashes {
		if _, err := e.blobs.Get(ctx, hash); err != nil {
			needed = append(needed, hash)
		}
	}
	if len(needed) == 0 {
		return nil
	}

	remoteBlobs, err := t.FetchBlobs(ctx)
	if err != nil {
		return err
	}
	batch := map[string][]byte{}
	for _, hash := range needed {
		data, ok := remoteBlobs[hash]
		if !ok {
			e.logf("WARNING: sync: blob %s referenced but absent on remote", hash)
			continue
		}
		batch[hash] = data
	}
	if len(batch) == 0 {
		return nil
	}
	return e.blobs.PutBatch(ctx, batch)
}

// referencedHashes extracts every attachment hash from a set of record
// serializations, sorted for deterministic transfer order.
func referencedHashes(state map[string][]byte) []string {
	seen := map[string]struct{}{}
	for _, data := range state {
		r, err := record.Deserialize(data)
		if err != nil {
			continue
		}
		for _, a := range r.Attachments {
			seen[a.ContentHash] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func unionKeys(a, b map[string][]byte) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
