package sigstore

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/bgpview/bgpview/internal/bgpview/bgperr"
)

func TestIntern_Idempotent(t *testing.T) {
	s := New()

	id1, err := s.Intern("rrc00", netip.MustParseAddr("192.0.2.1"), 64500)
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	id2, err := s.Intern("rrc00", netip.MustParseAddr("192.0.2.1"), 64500)
	if err != nil {
		t.Fatalf("Intern (second): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same PeerID, got %d and %d", id1, id2)
	}

	other, err := s.Intern("rrc00", netip.MustParseAddr("192.0.2.2"), 64500)
	if err != nil {
		t.Fatalf("Intern (distinct peer_ip): %v", err)
	}
	if other == id1 {
		t.Fatalf("distinct triples must not share a PeerID")
	}
}

func TestIntern_LookupRoundTrip(t *testing.T) {
	s := New()
	sig := Signature{Collector: "rrc00", PeerIP: netip.MustParseAddr("192.0.2.1"), PeerASN: 64500}

	id, err := s.Intern(sig.Collector, sig.PeerIP, sig.PeerASN)
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}

	got, err := s.Lookup(id)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != sig {
		t.Fatalf("Lookup(%d) = %+v, want %+v", id, got, sig)
	}
}

func TestLookup_InvalidID(t *testing.T) {
	s := New()
	if _, err := s.Lookup(invalidPeerID); !errors.Is(err, bgperr.ErrNotFound) {
		t.Fatalf("Lookup(0): err = %v, want NotFound", err)
	}
	if _, err := s.Lookup(PeerID(1)); !errors.Is(err, bgperr.ErrNotFound) {
		t.Fatalf("Lookup(1) on empty store: err = %v, want NotFound", err)
	}
}

func TestIntern_CollectorTooLong(t *testing.T) {
	s := New()
	long := make([]byte, maxCollectorLen+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := s.Intern(string(long), netip.MustParseAddr("192.0.2.1"), 64500); !errors.Is(err, bgperr.ErrInvalidArg) {
		t.Fatalf("Intern with oversized collector: err = %v, want InvalidArg", err)
	}
}

// TestIntern_CapacityBoundary exercises the PeerID space boundary called
// out by spec §8: the first 65534 distinct signatures are interned, and the
// 65535th must fail with Capacity rather than silently wrapping or
// truncating the ID.
func TestIntern_CapacityBoundary(t *testing.T) {
	s := New()

	for i := 0; i < maxPeerID-1; i++ {
		addr := netip.AddrFrom4([4]byte{10, byte(i >> 16), byte(i >> 8), byte(i)})
		id, err := s.Intern("rrc00", addr, uint32(i))
		if err != nil {
			t.Fatalf("Intern #%d: unexpected error: %v", i, err)
		}
		if id == invalidPeerID {
			t.Fatalf("Intern #%d: got reserved PeerID 0", i)
		}
	}
	if got := s.Len(); got != maxPeerID-1 {
		t.Fatalf("Len() = %d, want %d", got, maxPeerID-1)
	}

	overflowAddr := netip.AddrFrom4([4]byte{11, 0, 0, 1})
	if _, err := s.Intern("rrc00", overflowAddr, 999999); !errors.Is(err, bgperr.ErrCapacity) {
		t.Fatalf("Intern past capacity: err = %v, want Capacity", err)
	}

	// A triple already interned before exhaustion remains resolvable.
	if _, err := s.Intern("rrc00", netip.AddrFrom4([4]byte{10, 0, 0, 0}), 0); err != nil {
		t.Fatalf("re-Intern of existing triple after exhaustion: %v", err)
	}
}

func TestIter_VisitsAllInserted(t *testing.T) {
	s := New()
	want := map[PeerID]Signature{}
	for i := 0; i < 5; i++ {
		addr := netip.AddrFrom4([4]byte{192, 0, 2, byte(i + 1)})
		id, err := s.Intern("rrc00", addr, uint32(64500+i))
		if err != nil {
			t.Fatalf("Intern #%d: %v", i, err)
		}
		want[id] = Signature{Collector: "rrc00", PeerIP: addr, PeerASN: uint32(64500 + i)}
	}

	got := map[PeerID]Signature{}
	s.Iter(func(id PeerID, sig Signature) bool {
		got[id] = sig
		return true
	})

	if len(got) != len(want) {
		t.Fatalf("Iter visited %d entries, want %d", len(got), len(want))
	}
	for id, sig := range want {
		if got[id] != sig {
			t.Errorf("Iter[%d] = %+v, want %+v", id, got[id], sig)
		}
	}
}

func TestIter_StopsEarly(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		addr := netip.AddrFrom4([4]byte{192, 0, 2, byte(i + 1)})
		if _, err := s.Intern("rrc00", addr, uint32(64500+i)); err != nil {
			t.Fatalf("Intern #%d: %v", i, err)
		}
	}

	visited := 0
	s.Iter(func(PeerID, Signature) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Fatalf("visited = %d, want 1 (Iter should stop after fn returns false)", visited)
	}
}
