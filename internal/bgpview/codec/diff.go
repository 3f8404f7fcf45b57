package codec

import (
	"errors"

	"github.com/bgpview/bgpview/internal/bgpview/bgperr"
	"github.com/bgpview/bgpview/internal/bgpview/pathstore"
	"github.com/bgpview/bgpview/internal/bgpview/sigstore"
	"github.com/bgpview/bgpview/internal/bgpview/view"
)

// AddedPfxPeer is a new (peer, path) edge on a changed pfx.
type AddedPfxPeer struct {
	Peer   sigstore.PeerID
	Path   pathstore.PathID
	Active bool
}

// ChangedPfxPeer is an existing edge whose path and/or active flag changed.
type ChangedPfxPeer struct {
	Peer      sigstore.PeerID
	OldPath   pathstore.PathID
	NewPath   pathstore.PathID
	NewActive bool
}

// ChangedPfx describes how one pfx's edge set differs between parent and
// current view (spec §4.6).
type ChangedPfx struct {
	Pfx          view.Pfx
	BasePeers    []sigstore.PeerID // unchanged edges, carried over as-is
	AddedPeers   []AddedPfxPeer
	ChangedPeers []ChangedPfxPeer
	RemovedPeers []sigstore.PeerID
}

// Diff is a parent-relative change set between two views sharing the same
// peer/path stores (spec §4.6). common_pfxs are intentionally not
// materialized — they are identified, not emitted, by ComputeDiff().
type Diff struct {
	AddedPfxs   []view.Pfx // emitted whole by the caller via Encode/filter
	RemovedPfxs []view.Pfx
	ChangedPfxs []ChangedPfx

	Stats DiffStats
}

// DiffStats mirrors the producer-side counters spec §4.6 requires.
// SyncPfxCnt is left zero by ComputeDiff — it only applies to full sync
// frames, and nothing in this package sets it.
type DiffStats struct {
	CommonPfxsCnt     int
	AddedPfxsCnt      int
	RemovedPfxsCnt    int
	ChangedPfxsCnt    int
	AddedPfxPeerCnt   int
	ChangedPfxPeerCnt int
	RemovedPfxPeerCnt int
	SyncPfxCnt        int
	PfxCnt            int
}

type edgeVal struct {
	path   pathstore.PathID
	active bool
}

type edgeSet map[sigstore.PeerID]edgeVal

// collectEdges returns every pfx-peer edge on pfx, active or not — a pfx
// with no edges at all (the normal shape of GC() debris) returns an empty
// set, which callers treat as "not present" the same way view.Snapshot
// does.
func collectEdges(v *view.View, pfx view.Pfx) (edgeSet, error) {
	edges := make(edgeSet)
	cur, err := view.NewPfxPeerCursor(v, pfx, view.FilterAll)
	if err != nil {
		return nil, err
	}
	for cur.Next() {
		peerID, pp, err := cur.Get()
		if err != nil {
			return nil, err
		}
		edges[peerID] = edgeVal{path: pp.PathID, active: pp.Active}
	}
	return edges, nil
}

// ComputeDiff computes the parent-relative diff between parent and cur
// (spec §4.6). Both must share the same peer/path stores; ComputeDiff
// does not itself verify this (the caller constructs both from the same
// sigstore/pathstore instances, as the engine always does).
func ComputeDiff(parent, cur *view.View) (*Diff, error) {
	d := &Diff{}

	parentPfxs, err := presentPfxs(parent)
	if err != nil {
		return nil, bgperr.Wrap(bgperr.Internal, err, "collecting parent pfxs")
	}
	curPfxs, err := presentPfxs(cur)
	if err != nil {
		return nil, bgperr.Wrap(bgperr.Internal, err, "collecting current pfxs")
	}

	for pfx := range parentPfxs {
		if _, ok := curPfxs[pfx]; !ok {
			d.RemovedPfxs = append(d.RemovedPfxs, pfx)
		}
	}

	for pfx := range curPfxs {
		if _, ok := parentPfxs[pfx]; !ok {
			d.AddedPfxs = append(d.AddedPfxs, pfx)
			continue
		}

		parentEdges, err := collectEdges(parent, pfx)
		if err != nil {
			return nil, bgperr.Wrap(bgperr.Internal, err, "collecting parent edges for %s", pfx)
		}
		curEdges, err := collectEdges(cur, pfx)
		if err != nil {
			return nil, bgperr.Wrap(bgperr.Internal, err, "collecting current edges for %s", pfx)
		}

		if edgeSetsEqual(parentEdges, curEdges) {
			d.Stats.CommonPfxsCnt++
			continue
		}

		cp := ChangedPfx{Pfx: pfx}
		for peerID, edge := range curEdges {
			oldEdge, existed := parentEdges[peerID]
			switch {
			case !existed:
				cp.AddedPeers = append(cp.AddedPeers, AddedPfxPeer{Peer: peerID, Path: edge.path, Active: edge.active})
			case oldEdge != edge:
				cp.ChangedPeers = append(cp.ChangedPeers, ChangedPfxPeer{Peer: peerID, OldPath: oldEdge.path, NewPath: edge.path, NewActive: edge.active})
			default:
				cp.BasePeers = append(cp.BasePeers, peerID)
			}
		}
		for peerID := range parentEdges {
			if _, ok := curEdges[peerID]; !ok {
				cp.RemovedPeers = append(cp.RemovedPeers, peerID)
			}
		}
		d.ChangedPfxs = append(d.ChangedPfxs, cp)
	}

	d.Stats.AddedPfxsCnt = len(d.AddedPfxs)
	d.Stats.RemovedPfxsCnt = len(d.RemovedPfxs)
	d.Stats.ChangedPfxsCnt = len(d.ChangedPfxs)
	for _, cp := range d.ChangedPfxs {
		d.Stats.AddedPfxPeerCnt += len(cp.AddedPeers)
		d.Stats.ChangedPfxPeerCnt += len(cp.ChangedPeers)
		d.Stats.RemovedPfxPeerCnt += len(cp.RemovedPeers)
	}
	d.Stats.PfxCnt = len(curPfxs)

	return d, nil
}

// presentPfxs returns the set of pfxs that carry at least one pfx-peer
// edge (active or not) — the same "present" definition view.Snapshot
// uses, so a pfx that exists only as not-yet-GC()'d debris with zero
// edges is treated as absent on both sides of the diff.
func presentPfxs(v *view.View) (map[view.Pfx]struct{}, error) {
	out := make(map[view.Pfx]struct{})
	pc := view.NewPfxCursor(v, view.FilterAll, view.FamilyFilterBoth)
	for pc.Next() {
		pfx, _, err := pc.Get()
		if err != nil {
			return nil, err
		}
		ppc, err := pc.Peers(view.FilterAll)
		if err != nil {
			return nil, err
		}
		if ppc.Next() {
			out[pfx] = struct{}{}
		}
	}
	return out, nil
}

func edgeSetsEqual(a, b edgeSet) bool {
	if len(a) != len(b) {
		return false
	}
	for peerID, edge := range a {
		if bEdge, ok := b[peerID]; !ok || bEdge != edge {
			return false
		}
	}
	return true
}

// ApplyDiff mutates dst (which must currently equal parent) in place so
// that afterwards dst ≡ cur (spec §8 P8: apply_diff(parent, diff(parent,
// V)) ≡ V). addedPfxSource supplies the full edge set for a newly added
// pfx (the diff itself only names it — per spec §4.6, "added_pfxs ...
// emitted whole" — so the wire decoder is expected to have already
// materialized those pfxs into a side table before calling ApplyDiff;
// callers building a diff in-process instead pass the current view as
// addedPfxSource directly).
func ApplyDiff(dst *view.View, d *Diff, addedPfxSource *view.View) error {
	for _, pfx := range d.RemovedPfxs {
		cur, err := view.NewPfxPeerCursor(dst, pfx, view.FilterAll)
		if err != nil {
			if errors.Is(err, bgperr.ErrNotFound) {
				continue
			}
			return err
		}
		var peers []sigstore.PeerID
		for cur.Next() {
			peerID, _, err := cur.Get()
			if err != nil {
				return err
			}
			peers = append(peers, peerID)
		}
		for _, peerID := range peers {
			if err := dst.RemovePfxPeer(pfx, peerID); err != nil {
				return err
			}
		}
	}

	for _, pfx := range d.AddedPfxs {
		edges, err := collectEdges(addedPfxSource, pfx)
		if err != nil {
			return bgperr.Wrap(bgperr.Internal, err, "reading added pfx %s from source", pfx)
		}
		for peerID, edge := range edges {
			if err := applyEdge(dst, pfx, peerID, edge.path, edge.active); err != nil {
				return err
			}
		}
	}

	for _, cp := range d.ChangedPfxs {
		for _, peerID := range cp.RemovedPeers {
			if err := dst.RemovePfxPeer(cp.Pfx, peerID); err != nil {
				return err
			}
		}
		for _, added := range cp.AddedPeers {
			if err := applyEdge(dst, cp.Pfx, added.Peer, added.Path, added.Active); err != nil {
				return err
			}
		}
		for _, changed := range cp.ChangedPeers {
			if err := applyEdge(dst, cp.Pfx, changed.Peer, changed.NewPath, changed.NewActive); err != nil {
				return err
			}
		}
	}

	dst.SetTime(addedPfxSource.GetTime())
	return nil
}

func applyEdge(dst *view.View, pfx view.Pfx, peerID sigstore.PeerID, pathID pathstore.PathID, active bool) error {
	if err := dst.AddPfxPeer(pfx, peerID, pathID); err != nil {
		return err
	}
	if active {
		_, err := dst.ActivatePfxPeer(pfx, peerID)
		return err
	}
	_, err := dst.DeactivatePfxPeer(pfx, peerID)
	return err
}

// ShouldSync reports whether a view at the given time should be published
// as a full sync frame rather than a diff, per spec §4.6: syncs happen on
// the configured cadence, and out-of-step startup (no parent, or the first
// sync boundary not yet reached) must skip publication entirely rather
// than emit a diff against nothing.
func ShouldSync(t uint32, syncInterval uint32, haveParent bool) (sync bool, skip bool) {
	if syncInterval == 0 {
		return true, false
	}
	aligned := t%syncInterval == 0
	if aligned {
		return true, false
	}
	if !haveParent {
		return false, true
	}
	return false, false
}
