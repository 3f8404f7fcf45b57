package codec

import (
	"bytes"
	"errors"
	"io"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bgpview/bgpview/internal/bgpview/bgperr"
	"github.com/bgpview/bgpview/internal/bgpview/pathstore"
	"github.com/bgpview/bgpview/internal/bgpview/sigstore"
	"github.com/bgpview/bgpview/internal/bgpview/view"
)

func buildTestView(t *testing.T) *view.View {
	t.Helper()
	sigs := sigstore.New()
	paths := pathstore.New()
	v := view.New(sigs, paths)
	v.SetTime(1700000000)

	peerA, err := v.AddPeer("rrc00", netip.MustParseAddr("192.0.2.1"), 64500)
	if err != nil {
		t.Fatalf("AddPeer: %v", err)
	}
	peerB, err := v.AddPeer("rrc00", netip.MustParseAddr("2001:db8::1"), 64501)
	if err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	path1, err := paths.InsertPath(pathstore.AsPath{Segments: []pathstore.Segment{
		{Kind: pathstore.SegSeq, ASNs: []uint32{64500, 65001}},
	}}, true)
	if err != nil {
		t.Fatalf("InsertPath: %v", err)
	}
	path2, err := paths.InsertPath(pathstore.AsPath{Segments: []pathstore.Segment{
		{Kind: pathstore.SegSeq, ASNs: []uint32{64501}},
		{Kind: pathstore.SegConfedSet, ASNs: []uint32{65002, 65003}},
	}}, false)
	if err != nil {
		t.Fatalf("InsertPath: %v", err)
	}

	pfx4 := mustPfx(t, "198.51.100.0/24")
	pfx6 := mustPfx(t, "2001:db8:1::/48")

	for _, edge := range []struct {
		pfx    view.Pfx
		peer   sigstore.PeerID
		path   pathstore.PathID
		active bool
	}{
		{pfx4, peerA, path1, true},
		{pfx4, peerB, path2, false},
		{pfx6, peerB, path2, true},
	} {
		if err := v.AddPfxPeer(edge.pfx, edge.peer, edge.path); err != nil {
			t.Fatalf("AddPfxPeer: %v", err)
		}
		if edge.active {
			if _, err := v.ActivatePfxPeer(edge.pfx, edge.peer); err != nil {
				t.Fatalf("ActivatePfxPeer: %v", err)
			}
		}
	}

	return v
}

func mustPfx(t *testing.T, s string) view.Pfx {
	t.Helper()
	p, err := view.ParsePfx(s)
	if err != nil {
		t.Fatalf("ParsePfx(%q): %v", s, err)
	}
	return p
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	v := buildTestView(t)

	var buf bytes.Buffer
	if err := Encode(&buf, v, Filter{}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(&buf, sigstore.New(), pathstore.New(), Filter{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	want, err := v.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot(v): %v", err)
	}
	got, err := decoded.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot(decoded): %v", err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decode(encode(v)) mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeDecode_EmptyView(t *testing.T) {
	sigs := sigstore.New()
	paths := pathstore.New()
	v := view.New(sigs, paths)
	v.SetTime(42)

	var buf bytes.Buffer
	if err := Encode(&buf, v, Filter{}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(&buf, sigstore.New(), pathstore.New(), Filter{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.GetTime() != 42 {
		t.Fatalf("expected time 42, got %d", decoded.GetTime())
	}
	if decoded.PeerCount() != 0 || decoded.PfxCount() != 0 {
		t.Fatalf("expected empty view, got %d peers / %d pfxs", decoded.PeerCount(), decoded.PfxCount())
	}
}

func TestEncodeDecode_ConcatenatedViews(t *testing.T) {
	v1 := buildTestView(t)
	v2 := buildTestView(t)
	v2.SetTime(1700003600)

	var buf bytes.Buffer
	if err := Encode(&buf, v1, Filter{}); err != nil {
		t.Fatalf("Encode(v1): %v", err)
	}
	if err := Encode(&buf, v2, Filter{}); err != nil {
		t.Fatalf("Encode(v2): %v", err)
	}

	sigs := sigstore.New()
	paths := pathstore.New()
	decoded, err := DecodeAll(&buf, sigs, paths, Filter{})
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 views, got %d", len(decoded))
	}
	if decoded[0].GetTime() != v1.GetTime() || decoded[1].GetTime() != v2.GetTime() {
		t.Fatalf("expected times [%d %d], got [%d %d]", v1.GetTime(), v2.GetTime(), decoded[0].GetTime(), decoded[1].GetTime())
	}
}

func TestEncodeDecode_PeerFilter(t *testing.T) {
	v := buildTestView(t)

	var keepPeerASN uint32 = 64500
	filter := Filter{
		Peer: func(_ sigstore.PeerID, sig sigstore.Signature) bool {
			return sig.PeerASN == keepPeerASN
		},
	}

	var buf bytes.Buffer
	if err := Encode(&buf, v, filter); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(&buf, sigstore.New(), pathstore.New(), filter)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	snap, err := decoded.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Peers) != 1 || snap.Peers[0].PeerASN != keepPeerASN {
		t.Fatalf("expected only peer asn %d, got %+v", keepPeerASN, snap.Peers)
	}
	for _, pfx := range snap.Pfxs {
		for _, pp := range pfx.Peers {
			if pp.Peer.PeerASN != keepPeerASN {
				t.Fatalf("expected only edges for asn %d, found %+v on %s", keepPeerASN, pp.Peer, pfx.Pfx)
			}
		}
	}
}

func TestDecode_TruncatedPathSection_ReturnsCorruptStream(t *testing.T) {
	v := buildTestView(t)

	var buf bytes.Buffer
	if err := Encode(&buf, v, Filter{}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	full := buf.Bytes()
	// Find the PATH end-of-section frame and truncate inside it, after the
	// path records but before the frame finishes — the decode-side
	// analogue of scenario 6 ("truncate the encoded byte stream ... the
	// decoder must return CorruptStream without touching the caller's
	// view").
	idx := bytes.Index(full, []byte{0x50, 0x41, 0x54, 0x48}) // "PATH"
	if idx < 0 {
		t.Fatalf("could not locate PATH frame in encoded stream")
	}
	truncated := full[:idx+2]

	_, err := Decode(bytes.NewReader(truncated), sigstore.New(), pathstore.New(), Filter{})
	if err == nil {
		t.Fatalf("expected an error decoding a truncated stream")
	}
	if !errors.Is(err, bgperr.ErrCorruptStream) {
		t.Fatalf("expected CorruptStream, got %v", err)
	}
}

func TestDecode_EmptyReader_ReturnsEOF(t *testing.T) {
	_, err := Decode(bytes.NewReader(nil), sigstore.New(), pathstore.New(), Filter{})
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}
