package notes

import (
	"context"
	"fmt"
	"strings"

	"github.com/arlowhite/gitadr/internal/apperr"
	"github.com/arlowhite/gitadr/internal/gitx"
)

// Remote moves note namespaces between the local repository and a named
// remote. It satisfies the sync engine's Transport contract: fetch the
// remote state as a key -> bytes snapshot, push a desired state back.
//
// Fetch lands on a tracking ref under refs/gadr/remote/ so the local
// namespace refs are never touched by a fetch. Push stages the desired
// state as a commit parented on the last fetched remote tip, so the
// remote sees a fast-forward unless force is set.
type Remote struct {
	repo    *gitx.Repo
	name    string
	records *Git
	blobs   *Git

	// Tips of the remote refs observed by the last fetch; parents for
	// the next push.
	recordsTip string
	blobsTip   string
}

// NewRemote returns a transport for the named remote, moving the records
// and blobs namespaces.
func NewRemote(repo *gitx.Repo, name string, records, blobs *Git) *Remote {
	return &Remote{repo: repo, name: name, records: records, blobs: blobs}
}

// FetchRecords retrieves the remote record namespace snapshot. A remote
// that has never been pushed to yields an empty snapshot; a network
// failure wraps apperr.ErrTransport.
func (r *Remote) FetchRecords(ctx context.Context) (map[string][]byte, error) {
	return r.fetch(ctx, r.records, &r.recordsTip)
}

// FetchBlobs retrieves the snapshot of the remote artifacts namespace.
func (r *Remote) FetchBlobs(ctx context.Context) (map[string][]byte, error) {
	return r.fetch(ctx, r.blobs, &r.blobsTip)
}

// PushRecords replaces the remote record namespace with state.
func (r *Remote) PushRecords(ctx context.Context, state map[string][]byte, force bool) error {
	return r.push(ctx, r.records, r.recordsTip, state, force)
}

// PushBlobs replaces the remote artifacts namespace with state.
func (r *Remote) PushBlobs(ctx context.Context, state map[string][]byte, force bool) error {
	return r.push(ctx, r.blobs, r.blobsTip, state, force)
}

func (r *Remote) fetch(ctx context.Context, ns *Git, tip *string) (map[string][]byte, error) {
	tracking := r.trackingRef(ns.Ref())
	_, err := r.repo.Run(ctx, "fetch", r.name, "+"+ns.Ref()+":"+tracking)
	if err != nil {
		// A remote without the ref yet is an empty namespace, not a
		// transport failure.
		if strings.Contains(err.Error(), "couldn't find remote ref") {
			*tip = ""
			return map[string][]byte{}, nil
		}
		return nil, fmt.Errorf("fetching %s from %s: %w: %v", ns.Ref(), r.name, apperr.ErrTransport, err)
	}
	*tip = r.repo.HeadCommit(ctx, tracking)
	return ns.SnapshotAt(ctx, tracking)
}

func (r *Remote) push(ctx context.Context, ns *Git, parent string, state map[string][]byte, force bool) error {
	commit, err := ns.CommitState(ctx, parent, state, "gadr: sync "+ns.Ref())
	if err != nil {
		return err
	}
	refspec := commit + ":" + ns.Ref()
	if force {
		refspec = "+" + refspec
	}
	if _, err := r.repo.Run(ctx, "push", r.name, refspec); err != nil {
		return fmt.Errorf("pushing %s to %s: %w: %v", ns.Ref(), r.name, apperr.ErrTransport, err)
	}
	return nil
}

func (r *Remote) trackingRef(ref string) string {
	short := ref[strings.LastIndexByte(ref, '/')+1:]
	return "refs/gadr/remote/" + r.name + "/" + short
}
