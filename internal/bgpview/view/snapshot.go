package view

import (
	"github.com/bgpview/bgpview/internal/bgpview/pathstore"
	"github.com/bgpview/bgpview/internal/bgpview/sigstore"
)

// SnapshotPfxPeer is one pfx-peer edge in a Snapshot, keyed by the peer's
// signature (not its numeric ID, which is renumbering-sensitive — spec
// §8 P5: "Peer/path IDs may be renumbered; the mapping must preserve
// equivalence").
type SnapshotPfxPeer struct {
	Peer   sigstore.Signature
	Active bool
	Path   pathstore.AsPath
	IsCore bool
}

// SnapshotPfx is one prefix and its edges in a Snapshot.
type SnapshotPfx struct {
	Pfx    Pfx
	Active bool
	Peers  []SnapshotPfxPeer
}

// Snapshot is a structural, ID-renumbering-independent view of a View's
// contents, used to assert equivalence in tests (spec §8 P5-P8) and to
// drive the ASCII dump.
type Snapshot struct {
	Time  uint32
	Peers []sigstore.Signature
	Pfxs  []SnapshotPfx
}

// Snapshot walks v in stable order and resolves every PeerID/PathID to its
// underlying value, so two views built through different ID assignments
// (e.g. one encoded then decoded into a fresh store) compare equal.
func (v *View) Snapshot() (Snapshot, error) {
	out := Snapshot{Time: v.GetTime()}

	peerCur := NewPeerCursor(v, FilterAll)
	for peerCur.Next() {
		id, _, err := peerCur.Get()
		if err != nil {
			return Snapshot{}, err
		}
		sig, err := v.SigStore.Lookup(id)
		if err != nil {
			return Snapshot{}, err
		}
		out.Peers = append(out.Peers, sig)
	}

	pfxCur := NewPfxCursor(v, FilterAll, FamilyFilterBoth)
	for pfxCur.Next() {
		pfx, active, err := pfxCur.Get()
		if err != nil {
			return Snapshot{}, err
		}
		sp := SnapshotPfx{Pfx: pfx, Active: active}

		ppCur, err := pfxCur.Peers(FilterAll)
		if err != nil {
			return Snapshot{}, err
		}
		for ppCur.Next() {
			peerID, pp, err := ppCur.Get()
			if err != nil {
				return Snapshot{}, err
			}
			sig, err := v.SigStore.Lookup(peerID)
			if err != nil {
				return Snapshot{}, err
			}
			storePath, err := v.PathStore.Get(pp.PathID)
			if err != nil {
				return Snapshot{}, err
			}
			sp.Peers = append(sp.Peers, SnapshotPfxPeer{
				Peer:   sig,
				Active: pp.Active,
				Path:   storePath.Path,
				IsCore: storePath.IsCore,
			})
		}
		if len(sp.Peers) == 0 {
			// A pfxEntry with no remaining edges is GC() debris, not a
			// meaningfully "present" prefix — skip it so two views that
			// differ only in whether GC() has run yet still compare equal.
			continue
		}
		out.Pfxs = append(out.Pfxs, sp)
	}

	return out, nil
}
