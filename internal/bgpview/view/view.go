// Package view implements the View (C3) and its Iterator (C4): a triply
// indexed (pfx, peer, path) container with active/inactive flags at every
// level (spec §3, §4.3, §4.4).
package view

import (
	"net/netip"

	"github.com/google/btree"

	"github.com/bgpview/bgpview/internal/bgpview/bgperr"
	"github.com/bgpview/bgpview/internal/bgpview/pathstore"
	"github.com/bgpview/bgpview/internal/bgpview/sigstore"
)

const btreeDegree = 32

// PfxPeerInfo is the spec's {path_id, active, user} edge record.
type PfxPeerInfo struct {
	PathID pathstore.PathID
	Active bool
	User   any
}

// PeerInfo is the spec's per-peer record.
type PeerInfo struct {
	SigID      sigstore.PeerID
	Active     bool
	PfxCountV4 int
	PfxCountV6 int
	User       any
}

type pfxEntry struct {
	active    bool
	peers     map[sigstore.PeerID]*PfxPeerInfo
	peerOrder *btree.BTreeG[sigstore.PeerID]
}

type peerEntry struct {
	info            PeerInfo
	totalPfxPeers   int // all edges, active or not — used by GC()
}

// View is the triply-indexed container described in spec §3/§4.3.
//
// Point lookups (AddPeer, AddPfxPeer, ...) go through the plain Go maps for
// O(1) access; iteration (Iterator) walks the companion btree indexes,
// which give stable ordering between mutations without hiding a copy of
// the stored values on read (SPEC_FULL.md §10.2).
type View struct {
	time uint32

	peers     map[sigstore.PeerID]*peerEntry
	peerOrder *btree.BTreeG[sigstore.PeerID]

	pfxs     map[Pfx]*pfxEntry
	pfxOrder *btree.BTreeG[Pfx]

	// gen increments on every mutating operation; outstanding Iterators
	// compare against it to detect invalidation (spec §9).
	gen uint64

	// poisoned is set if an internal invariant violation is ever detected;
	// subsequent mutations fail fast (spec §7).
	poisoned bool

	SigStore  *sigstore.Store
	PathStore *pathstore.Store
}

func lessPeerID(a, b sigstore.PeerID) bool { return a < b }
func lessPfx(a, b Pfx) bool                { return comparePfx(a, b) < 0 }

// New creates an empty View backed by the given (shared) signature and
// path stores.
func New(sigStore *sigstore.Store, pathStore *pathstore.Store) *View {
	return &View{
		peers:     make(map[sigstore.PeerID]*peerEntry),
		peerOrder: btree.NewG(btreeDegree, lessPeerID),
		pfxs:      make(map[Pfx]*pfxEntry),
		pfxOrder:  btree.NewG(btreeDegree, lessPfx),
		SigStore:  sigStore,
		PathStore: pathStore,
	}
}

func (v *View) checkPoisoned() error {
	if v.poisoned {
		return bgperr.New(bgperr.Internal, "view is poisoned by a prior invariant violation")
	}
	return nil
}

func (v *View) poison(format string, args ...any) error {
	v.poisoned = true
	return bgperr.New(bgperr.Internal, format, args...)
}

// GetTime returns the view's representative snapshot time.
func (v *View) GetTime() uint32 { return v.time }

// SetTime sets the view's representative snapshot time.
func (v *View) SetTime(t uint32) {
	v.time = t
	v.gen++
}

// AddPeer interns the (collector, ip, asn) signature and creates an
// inactive PeerInfo if this is the first time the peer is seen.
func (v *View) AddPeer(collector string, ip netip.Addr, asn uint32) (sigstore.PeerID, error) {
	if err := v.checkPoisoned(); err != nil {
		return 0, err
	}

	id, err := v.SigStore.Intern(collector, ip, asn)
	if err != nil {
		return 0, err
	}

	if _, ok := v.peers[id]; !ok {
		v.peers[id] = &peerEntry{info: PeerInfo{SigID: id}}
		v.peerOrder.ReplaceOrInsert(id)
		v.gen++
	}
	return id, nil
}

// Peer returns the PeerInfo for id, or NotFound.
func (v *View) Peer(id sigstore.PeerID) (PeerInfo, error) {
	pe, ok := v.peers[id]
	if !ok {
		return PeerInfo{}, bgperr.New(bgperr.NotFound, "peer %d", id)
	}
	return pe.info, nil
}

// PeerUser returns a pointer to the peer's opaque user data so callers can
// mutate it in place without a second lookup.
func (v *View) PeerUser(id sigstore.PeerID) (*any, error) {
	pe, ok := v.peers[id]
	if !ok {
		return nil, bgperr.New(bgperr.NotFound, "peer %d", id)
	}
	return &pe.info.User, nil
}

// ActivatePeer marks the peer active directly (a low-level primitive; most
// callers should prefer ActivatePfxPeer, which maintains invariants 1-3
// automatically). Returns whether the flag changed.
func (v *View) ActivatePeer(id sigstore.PeerID) (bool, error) {
	if err := v.checkPoisoned(); err != nil {
		return false, err
	}
	pe, ok := v.peers[id]
	if !ok {
		return false, bgperr.New(bgperr.NotFound, "peer %d", id)
	}
	changed := !pe.info.Active
	pe.info.Active = true
	if changed {
		v.gen++
	}
	return changed, nil
}

// DeactivatePeer marks the peer inactive and cascades deactivation to every
// pfx-peer on it, so invariants 1-2 hold immediately afterwards (spec
// §4.7's STATE-down handling: "deactivate all pfx-peers for that peer and
// mark peer inactive").
func (v *View) DeactivatePeer(id sigstore.PeerID) (bool, error) {
	if err := v.checkPoisoned(); err != nil {
		return false, err
	}
	pe, ok := v.peers[id]
	if !ok {
		return false, bgperr.New(bgperr.NotFound, "peer %d", id)
	}

	changed := pe.info.Active

	v.pfxOrder.Ascend(func(pfx Pfx) bool {
		entry := v.pfxs[pfx]
		if entry == nil {
			return true
		}
		if pp, ok := entry.peers[id]; ok && pp.Active {
			pp.Active = false
			v.recomputePfxActive(pfx, entry)
		}
		return true
	})

	pe.info.Active = false
	pe.info.PfxCountV4 = 0
	pe.info.PfxCountV6 = 0
	if changed {
		v.gen++
	}
	return changed, nil
}

// RemovePeer removes the peer and all of its pfx-peers, recomputing pfx
// active flags (spec §4.3 invariant 4).
func (v *View) RemovePeer(id sigstore.PeerID) error {
	if err := v.checkPoisoned(); err != nil {
		return err
	}
	if _, ok := v.peers[id]; !ok {
		return bgperr.New(bgperr.NotFound, "peer %d", id)
	}

	v.pfxOrder.Ascend(func(pfx Pfx) bool {
		entry := v.pfxs[pfx]
		if entry == nil {
			return true
		}
		if _, ok := entry.peers[id]; ok {
			delete(entry.peers, id)
			entry.peerOrder.Delete(id)
			v.recomputePfxActive(pfx, entry)
		}
		return true
	})

	delete(v.peers, id)
	v.peerOrder.Delete(id)
	v.gen++
	return nil
}

// AddPfxPeer inserts or updates the (pfx, peer) edge, leaving it inactive.
func (v *View) AddPfxPeer(pfx Pfx, peerID sigstore.PeerID, pathID pathstore.PathID) error {
	if err := v.checkPoisoned(); err != nil {
		return err
	}
	if _, ok := v.peers[peerID]; !ok {
		return bgperr.New(bgperr.NotFound, "peer %d", peerID)
	}
	if _, err := v.PathStore.Get(pathID); err != nil {
		return bgperr.Wrap(bgperr.InvalidArg, err, "path id %+v", pathID)
	}

	entry := v.pfxs[pfx]
	if entry == nil {
		entry = &pfxEntry{
			peers:     make(map[sigstore.PeerID]*PfxPeerInfo),
			peerOrder: btree.NewG(btreeDegree, lessPeerID),
		}
		v.pfxs[pfx] = entry
		v.pfxOrder.ReplaceOrInsert(pfx)
	}

	pp, ok := entry.peers[peerID]
	if !ok {
		pp = &PfxPeerInfo{}
		entry.peers[peerID] = pp
		entry.peerOrder.ReplaceOrInsert(peerID)
		v.peers[peerID].totalPfxPeers++
	}
	pp.PathID = pathID
	v.gen++
	return nil
}

// PfxPeer returns the edge for (pfx, peerID), or NotFound.
func (v *View) PfxPeer(pfx Pfx, peerID sigstore.PeerID) (PfxPeerInfo, error) {
	entry, ok := v.pfxs[pfx]
	if !ok {
		return PfxPeerInfo{}, bgperr.New(bgperr.NotFound, "pfx %s", pfx)
	}
	pp, ok := entry.peers[peerID]
	if !ok {
		return PfxPeerInfo{}, bgperr.New(bgperr.NotFound, "pfx %s peer %d", pfx, peerID)
	}
	return *pp, nil
}

// ActivatePfxPeer flips the edge active and propagates invariants 1-3.
// Returns whether the flag changed.
func (v *View) ActivatePfxPeer(pfx Pfx, peerID sigstore.PeerID) (bool, error) {
	if err := v.checkPoisoned(); err != nil {
		return false, err
	}
	entry, ok := v.pfxs[pfx]
	if !ok {
		return false, bgperr.New(bgperr.NotFound, "pfx %s", pfx)
	}
	pp, ok := entry.peers[peerID]
	if !ok {
		return false, bgperr.New(bgperr.NotFound, "pfx %s peer %d", pfx, peerID)
	}
	if pp.Active {
		return false, nil
	}

	pp.Active = true
	entry.active = true

	pe := v.peers[peerID]
	if pe == nil {
		return false, v.poison("pfx-peer %s/%d references unknown peer", pfx, peerID)
	}
	pe.info.Active = true
	if FamilyOf(pfx) == FamilyIPv4 {
		pe.info.PfxCountV4++
	} else {
		pe.info.PfxCountV6++
	}

	v.gen++
	return true, nil
}

// DeactivatePfxPeer flips the edge inactive and propagates invariants 1-3.
func (v *View) DeactivatePfxPeer(pfx Pfx, peerID sigstore.PeerID) (bool, error) {
	if err := v.checkPoisoned(); err != nil {
		return false, err
	}
	entry, ok := v.pfxs[pfx]
	if !ok {
		return false, bgperr.New(bgperr.NotFound, "pfx %s", pfx)
	}
	pp, ok := entry.peers[peerID]
	if !ok {
		return false, bgperr.New(bgperr.NotFound, "pfx %s peer %d", pfx, peerID)
	}
	if !pp.Active {
		return false, nil
	}

	pp.Active = false
	v.recomputePfxActive(pfx, entry)

	pe := v.peers[peerID]
	if pe == nil {
		return false, v.poison("pfx-peer %s/%d references unknown peer", pfx, peerID)
	}
	if FamilyOf(pfx) == FamilyIPv4 {
		pe.info.PfxCountV4--
	} else {
		pe.info.PfxCountV6--
	}
	pe.info.Active = pe.info.PfxCountV4 > 0 || pe.info.PfxCountV6 > 0

	v.gen++
	return true, nil
}

// RemovePfxPeer removes the (pfx, peer) edge entirely.
func (v *View) RemovePfxPeer(pfx Pfx, peerID sigstore.PeerID) error {
	if err := v.checkPoisoned(); err != nil {
		return err
	}
	entry, ok := v.pfxs[pfx]
	if !ok {
		return bgperr.New(bgperr.NotFound, "pfx %s", pfx)
	}
	pp, ok := entry.peers[peerID]
	if !ok {
		return bgperr.New(bgperr.NotFound, "pfx %s peer %d", pfx, peerID)
	}

	wasActive := pp.Active
	delete(entry.peers, peerID)
	entry.peerOrder.Delete(peerID)
	v.recomputePfxActive(pfx, entry)

	if pe := v.peers[peerID]; pe != nil {
		pe.totalPfxPeers--
		if wasActive {
			if FamilyOf(pfx) == FamilyIPv4 {
				pe.info.PfxCountV4--
			} else {
				pe.info.PfxCountV6--
			}
			pe.info.Active = pe.info.PfxCountV4 > 0 || pe.info.PfxCountV6 > 0
		}
	}

	v.gen++
	return nil
}

// recomputePfxActive recomputes entry.active from its current pfx-peer set
// (invariant 1).
func (v *View) recomputePfxActive(_ Pfx, entry *pfxEntry) {
	active := false
	for _, pp := range entry.peers {
		if pp.Active {
			active = true
			break
		}
	}
	entry.active = active
}

// PfxActive reports whether pfx has at least one active pfx-peer.
func (v *View) PfxActive(pfx Pfx) (bool, error) {
	entry, ok := v.pfxs[pfx]
	if !ok {
		return false, bgperr.New(bgperr.NotFound, "pfx %s", pfx)
	}
	return entry.active, nil
}

// GC drops pfxs with zero peers and peers with zero pfx-peers (both must
// be inactive to be dropped, which is automatic: zero edges implies
// inactive).
func (v *View) GC() {
	var emptyPfxs []Pfx
	v.pfxOrder.Ascend(func(pfx Pfx) bool {
		entry := v.pfxs[pfx]
		if entry != nil && len(entry.peers) == 0 && !entry.active {
			emptyPfxs = append(emptyPfxs, pfx)
		}
		return true
	})
	for _, pfx := range emptyPfxs {
		delete(v.pfxs, pfx)
		v.pfxOrder.Delete(pfx)
	}

	var emptyPeers []sigstore.PeerID
	v.peerOrder.Ascend(func(id sigstore.PeerID) bool {
		pe := v.peers[id]
		if pe != nil && pe.totalPfxPeers == 0 && !pe.info.Active {
			emptyPeers = append(emptyPeers, id)
		}
		return true
	})
	for _, id := range emptyPeers {
		delete(v.peers, id)
		v.peerOrder.Delete(id)
	}

	if len(emptyPfxs) > 0 || len(emptyPeers) > 0 {
		v.gen++
	}
}

// Clear empties the pfx/peer maps; the signature and path stores are kept.
func (v *View) Clear() {
	v.peers = make(map[sigstore.PeerID]*peerEntry)
	v.peerOrder = btree.NewG(btreeDegree, lessPeerID)
	v.pfxs = make(map[Pfx]*pfxEntry)
	v.pfxOrder = btree.NewG(btreeDegree, lessPfx)
	v.gen++
}

// Dup returns a structural deep copy of v, sharing the same signature and
// path stores (spec §4.3: "dup() -> View ... sharing the same path/sig
// stores").
func (v *View) Dup() *View {
	out := New(v.SigStore, v.PathStore)
	out.Copy(v)
	return out
}

// Copy replaces v's contents with a structural deep copy of src, sharing
// src's stores.
func (v *View) Copy(src *View) {
	v.time = src.time
	v.SigStore = src.SigStore
	v.PathStore = src.PathStore

	v.peers = make(map[sigstore.PeerID]*peerEntry, len(src.peers))
	v.peerOrder = btree.NewG(btreeDegree, lessPeerID)
	for id, pe := range src.peers {
		cp := *pe
		v.peers[id] = &cp
		v.peerOrder.ReplaceOrInsert(id)
	}

	v.pfxs = make(map[Pfx]*pfxEntry, len(src.pfxs))
	v.pfxOrder = btree.NewG(btreeDegree, lessPfx)
	for pfx, entry := range src.pfxs {
		cp := &pfxEntry{
			active:    entry.active,
			peers:     make(map[sigstore.PeerID]*PfxPeerInfo, len(entry.peers)),
			peerOrder: btree.NewG(btreeDegree, lessPeerID),
		}
		for peerID, pp := range entry.peers {
			ppCopy := *pp
			cp.peers[peerID] = &ppCopy
			cp.peerOrder.ReplaceOrInsert(peerID)
		}
		v.pfxs[pfx] = cp
		v.pfxOrder.ReplaceOrInsert(pfx)
	}

	v.gen++
}

// PeerCount returns the number of peers currently tracked (active or not).
func (v *View) PeerCount() int { return len(v.peers) }

// PfxCount returns the number of prefixes currently tracked (active or not).
func (v *View) PfxCount() int { return len(v.pfxs) }
