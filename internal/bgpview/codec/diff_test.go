package codec

import (
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bgpview/bgpview/internal/bgpview/pathstore"
	"github.com/bgpview/bgpview/internal/bgpview/sigstore"
	"github.com/bgpview/bgpview/internal/bgpview/view"
)

// buildScenario2View reproduces spec scenario 2's RIB promotion outcome:
// one peer with two active pfx-peers.
func buildScenario2View(t *testing.T) (*view.View, sigstore.PeerID, pathstore.PathID, pathstore.PathID) {
	t.Helper()
	sigs := sigstore.New()
	paths := pathstore.New()
	v := view.New(sigs, paths)
	v.SetTime(3600)

	peerID, err := v.AddPeer("rrc00", netip.MustParseAddr("10.0.0.1"), 65001)
	if err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	path1, err := paths.InsertPath(pathstore.AsPath{Segments: []pathstore.Segment{
		{Kind: pathstore.SegSeq, ASNs: []uint32{65001}},
	}}, true)
	if err != nil {
		t.Fatalf("InsertPath: %v", err)
	}
	path2, err := paths.InsertPath(pathstore.AsPath{Segments: []pathstore.Segment{
		{Kind: pathstore.SegSeq, ASNs: []uint32{65001, 65002}},
	}}, true)
	if err != nil {
		t.Fatalf("InsertPath: %v", err)
	}

	pfx1 := mustPfx(t, "10.1.0.0/16")
	pfx2 := mustPfx(t, "10.2.0.0/16")

	if err := v.AddPfxPeer(pfx1, peerID, path1); err != nil {
		t.Fatalf("AddPfxPeer: %v", err)
	}
	if _, err := v.ActivatePfxPeer(pfx1, peerID); err != nil {
		t.Fatalf("ActivatePfxPeer: %v", err)
	}
	if err := v.AddPfxPeer(pfx2, peerID, path2); err != nil {
		t.Fatalf("AddPfxPeer: %v", err)
	}
	if _, err := v.ActivatePfxPeer(pfx2, peerID); err != nil {
		t.Fatalf("ActivatePfxPeer: %v", err)
	}

	return v, peerID, path1, path2
}

func TestComputeDiff_WithdrawalProducesChangedPfxPeer(t *testing.T) {
	parent, peerID, _, _ := buildScenario2View(t)
	cur := parent.Dup()
	cur.SetTime(3605)

	pfx1 := mustPfx(t, "10.1.0.0/16")
	if _, err := cur.DeactivatePfxPeer(pfx1, peerID); err != nil {
		t.Fatalf("DeactivatePfxPeer: %v", err)
	}

	d, err := ComputeDiff(parent, cur)
	if err != nil {
		t.Fatalf("ComputeDiff: %v", err)
	}

	// The pfx-peer edge itself still exists (inactive), so per spec §4.6
	// this is a changed_pfx (differing pfx-peer set), not a removed_pfx —
	// a withdrawal never deletes the edge record, only deactivates it.
	if len(d.RemovedPfxs) != 0 {
		t.Fatalf("expected no removed pfxs, got %v", d.RemovedPfxs)
	}
	if len(d.ChangedPfxs) != 1 || d.ChangedPfxs[0].Pfx != pfx1 {
		t.Fatalf("expected %s in ChangedPfxs, got %v", pfx1, d.ChangedPfxs)
	}
	cp := d.ChangedPfxs[0]
	if len(cp.ChangedPeers) != 1 || cp.ChangedPeers[0].Peer != peerID || cp.ChangedPeers[0].NewActive {
		t.Fatalf("expected peer %d deactivated in ChangedPeers, got %+v", peerID, cp.ChangedPeers)
	}
	if d.Stats.CommonPfxsCnt != 1 {
		// 10.2.0.0/16 remains identical between parent and cur.
		t.Fatalf("expected CommonPfxsCnt 1 (unaffected pfx), got %d", d.Stats.CommonPfxsCnt)
	}
}

func TestApplyDiff_MatchesProducerView(t *testing.T) {
	parent, peerID, _, _ := buildScenario2View(t)
	cur := parent.Dup()
	cur.SetTime(3605)

	pfx1 := mustPfx(t, "10.1.0.0/16")
	if _, err := cur.DeactivatePfxPeer(pfx1, peerID); err != nil {
		t.Fatalf("DeactivatePfxPeer: %v", err)
	}

	d, err := ComputeDiff(parent, cur)
	if err != nil {
		t.Fatalf("ComputeDiff: %v", err)
	}

	receiver := parent.Dup()
	if err := ApplyDiff(receiver, d, cur); err != nil {
		t.Fatalf("ApplyDiff: %v", err)
	}

	want, err := cur.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot(cur): %v", err)
	}
	got, err := receiver.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot(receiver): %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("apply_diff(parent, diff(parent, cur)) mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeDiff_AddedPfx(t *testing.T) {
	parent, peerID, _, path1 := buildScenario2View(t)
	cur := parent.Dup()
	cur.SetTime(3605)

	newPfx := mustPfx(t, "10.3.0.0/16")
	if err := cur.AddPfxPeer(newPfx, peerID, path1); err != nil {
		t.Fatalf("AddPfxPeer: %v", err)
	}
	if _, err := cur.ActivatePfxPeer(newPfx, peerID); err != nil {
		t.Fatalf("ActivatePfxPeer: %v", err)
	}

	d, err := ComputeDiff(parent, cur)
	if err != nil {
		t.Fatalf("ComputeDiff: %v", err)
	}
	if len(d.AddedPfxs) != 1 || d.AddedPfxs[0] != newPfx {
		t.Fatalf("expected %s in AddedPfxs, got %v", newPfx, d.AddedPfxs)
	}

	receiver := parent.Dup()
	if err := ApplyDiff(receiver, d, cur); err != nil {
		t.Fatalf("ApplyDiff: %v", err)
	}
	active, err := receiver.PfxActive(newPfx)
	if err != nil {
		t.Fatalf("PfxActive: %v", err)
	}
	if !active {
		t.Fatalf("expected %s active on receiver after ApplyDiff", newPfx)
	}
}

func TestShouldSync(t *testing.T) {
	if sync, skip := ShouldSync(3600, 3600, false); !sync || skip {
		t.Fatalf("expected sync at an aligned boundary regardless of parent, got sync=%v skip=%v", sync, skip)
	}
	if sync, skip := ShouldSync(3605, 3600, false); sync || !skip {
		t.Fatalf("expected out-of-step startup (no parent, unaligned) to skip, got sync=%v skip=%v", sync, skip)
	}
	if sync, skip := ShouldSync(3605, 3600, true); sync || skip {
		t.Fatalf("expected an unaligned tick with a parent to diff (no sync, no skip), got sync=%v skip=%v", sync, skip)
	}
}
