// Package sigstore implements the Peer Signature Store (C1): it interns
// (collector, peer_ip, peer_asn) triples to a stable, non-zero 16-bit
// PeerID.
package sigstore

import (
	"net/netip"
	"sync"

	"github.com/bgpview/bgpview/internal/bgpview/bgperr"
)

// PeerID is a stable, non-zero 16-bit handle assigned to a PeerSignature.
// ID 0 is reserved as "invalid" (spec §3).
type PeerID uint16

const invalidPeerID PeerID = 0

// maxPeerID bounds the 16-bit PeerID space: IDs 1..maxPeerID-1 are
// assigned, so the 65535th distinct intern fails with Capacity.
const maxPeerID = 65535

// Signature is an interned (collector, peer_ip, peer_asn) triple.
// Immutable once assigned (spec §3).
type Signature struct {
	Collector string
	PeerIP    netip.Addr
	PeerASN   uint32
}

const maxCollectorLen = 255

type key struct {
	collector string
	peerIP    netip.Addr
	peerASN   uint32
}

// Store is the Peer Signature Store. Safe for concurrent use — the store is
// shared by the view and the engine (spec §5), and while both the view and
// the engine are themselves single-threaded, a Kafka worker may hold a
// detached snapshot referencing the same store concurrently with the main
// task's inserts, so lookups and inserts take a lock.
type Store struct {
	mu   sync.RWMutex
	byID []Signature // index 0 unused (PeerID 0 is invalid)
	ids  map[key]PeerID
}

// New creates an empty Peer Signature Store.
func New() *Store {
	return &Store{
		byID: make([]Signature, 1, 64), // slot 0 reserved
		ids:  make(map[key]PeerID, 64),
	}
}

// Intern assigns (or returns the existing) PeerID for the given triple.
// Idempotent: the same triple always returns the same ID.
func (s *Store) Intern(collector string, peerIP netip.Addr, peerASN uint32) (PeerID, error) {
	if len(collector) > maxCollectorLen {
		return invalidPeerID, bgperr.New(bgperr.InvalidArg, "collector name %d bytes exceeds %d", len(collector), maxCollectorLen)
	}

	k := key{collector: collector, peerIP: peerIP, peerASN: peerASN}

	s.mu.RLock()
	if id, ok := s.ids[k]; ok {
		s.mu.RUnlock()
		return id, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the write lock: another goroutine may have interned
	// the same triple between the RUnlock above and this Lock.
	if id, ok := s.ids[k]; ok {
		return id, nil
	}

	if len(s.byID) >= maxPeerID {
		return invalidPeerID, bgperr.New(bgperr.Capacity, "peer signature store exhausted (%d signatures)", len(s.byID)-1)
	}

	id := PeerID(len(s.byID))
	s.byID = append(s.byID, Signature{Collector: collector, PeerIP: peerIP, PeerASN: peerASN})
	s.ids[k] = id
	return id, nil
}

// Lookup returns the signature for id, or NotFound if it was never interned.
func (s *Store) Lookup(id PeerID) (Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == invalidPeerID || int(id) >= len(s.byID) {
		return Signature{}, bgperr.New(bgperr.NotFound, "peer id %d", id)
	}
	return s.byID[id], nil
}

// Len returns the number of interned signatures.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID) - 1
}

// Iter calls fn for every interned (PeerID, Signature) pair. Order is
// unspecified. Iteration stops early if fn returns false.
func (s *Store) Iter(fn func(PeerID, Signature) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id := 1; id < len(s.byID); id++ {
		if !fn(PeerID(id), s.byID[id]) {
			return
		}
	}
}
