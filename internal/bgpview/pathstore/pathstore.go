// Package pathstore implements the AS-Path Store (C2): it content-addresses
// AS paths and returns stable PathIDs, distinguishing "core" (fully
// canonical) paths from "non-core" paths such as synthesized per-origin
// variants (spec §3, §4.2).
package pathstore

import (
	"encoding/binary"

	"github.com/bgpview/bgpview/internal/bgpview/bgperr"
)

// SegmentKind tags an AsPathSegment (spec §3).
type SegmentKind uint8

const (
	SegSet SegmentKind = iota + 1
	SegSeq
	SegConfedSet
	SegConfedSeq
)

// Segment is a tagged union {kind, asns} (spec §3).
type Segment struct {
	Kind SegmentKind
	ASNs []uint32
}

// AsPath is an ordered list of segments.
type AsPath struct {
	Segments []Segment
}

// PathID identifies a stored path. Equal (encoding, isCore) maps to equal
// PathID (spec §3: "Produced by C2; stable for the lifetime of the store").
type PathID struct {
	StoreIndex uint32
	IsCore     bool
}

// StorePath is what Get returns: the raw encoding, its core flag, and the
// decoded AsPath.
type StorePath struct {
	Encoding []byte
	IsCore   bool
	Path     AsPath
}

type pathKey struct {
	encoding string // encoding bytes as a map key
	isCore   bool
}

// Store is the AS-Path Store. Append-only except during test teardown
// (spec §5), so it needs no lock for the single-threaded engine/view core;
// a Kafka worker holding a detached snapshot only ever reads it after the
// handoff, per §5's "no inserts permitted after a snapshot is detached".
type Store struct {
	paths []StorePath
	ids   map[pathKey]uint32
}

// New creates an empty AS-Path Store.
func New() *Store {
	return &Store{ids: make(map[pathKey]uint32, 64)}
}

// Insert content-addresses encoding under isCore, returning its PathID.
// Idempotent per (encoding, isCore).
func (s *Store) Insert(encoding []byte, isCore bool) (PathID, error) {
	k := pathKey{encoding: string(encoding), isCore: isCore}
	if idx, ok := s.ids[k]; ok {
		return PathID{StoreIndex: idx, IsCore: isCore}, nil
	}

	path, err := Decode(encoding)
	if err != nil {
		return PathID{}, bgperr.Wrap(bgperr.InvalidArg, err, "decoding as-path encoding")
	}

	idx := uint32(len(s.paths))
	cp := make([]byte, len(encoding))
	copy(cp, encoding)
	s.paths = append(s.paths, StorePath{Encoding: cp, IsCore: isCore, Path: path})
	s.ids[k] = idx
	return PathID{StoreIndex: idx, IsCore: isCore}, nil
}

// InsertPath encodes path and inserts it, a convenience wrapper for callers
// (e.g. the engine) that build an AsPath directly instead of raw bytes.
func (s *Store) InsertPath(path AsPath, isCore bool) (PathID, error) {
	return s.Insert(Encode(path), isCore)
}

// Get returns the StorePath for id, or NotFound if id is unknown.
func (s *Store) Get(id PathID) (StorePath, error) {
	if int(id.StoreIndex) >= len(s.paths) {
		return StorePath{}, bgperr.New(bgperr.NotFound, "path id %+v", id)
	}
	sp := s.paths[id.StoreIndex]
	if sp.IsCore != id.IsCore {
		return StorePath{}, bgperr.New(bgperr.NotFound, "path id %+v: core flag mismatch", id)
	}
	return sp, nil
}

// IterPaths calls fn for every stored path. Order is unspecified but stable
// between mutations (insertion order).
func (s *Store) IterPaths(fn func(StorePath) bool) {
	for _, p := range s.paths {
		if !fn(p) {
			return
		}
	}
}

// Len returns the number of distinct (encoding, isCore) paths stored.
func (s *Store) Len() int { return len(s.paths) }

// Encode serializes an AsPath to the on-disk record format (spec §4.2):
// a sequence of {segment_kind: u8, asn_count: u8, asn_list: [u32; count]}
// records, ASN fields in host byte order (spec §9's chosen policy is
// applied one layer up, in the binary codec, which tags the byte order
// used — see codec.Encode).
func Encode(path AsPath) []byte {
	buf := make([]byte, 0, 2*len(path.Segments)+4*pathASNCount(path))
	for _, seg := range path.Segments {
		n := len(seg.ASNs)
		if n > 255 {
			n = 255 // segments longer than 255 ASNs are truncated on encode
		}
		buf = append(buf, byte(seg.Kind), byte(n))
		for i := 0; i < n; i++ {
			var tmp [4]byte
			nativeEndian.PutUint32(tmp[:], seg.ASNs[i])
			buf = append(buf, tmp[:]...)
		}
	}
	return buf
}

func pathASNCount(path AsPath) int {
	n := 0
	for _, seg := range path.Segments {
		n += len(seg.ASNs)
	}
	return n
}

// Decode parses the on-disk record format back into an AsPath.
func Decode(encoding []byte) (AsPath, error) {
	var path AsPath
	off := 0
	for off < len(encoding) {
		if off+2 > len(encoding) {
			return AsPath{}, bgperr.New(bgperr.InvalidFormat, "truncated segment header at offset %d", off)
		}
		kind := SegmentKind(encoding[off])
		count := int(encoding[off+1])
		off += 2

		need := count * 4
		if off+need > len(encoding) {
			return AsPath{}, bgperr.New(bgperr.InvalidFormat, "truncated segment body at offset %d", off)
		}

		asns := make([]uint32, count)
		for i := 0; i < count; i++ {
			asns[i] = nativeEndian.Uint32(encoding[off : off+4])
			off += 4
		}
		path.Segments = append(path.Segments, Segment{Kind: kind, ASNs: asns})
	}
	return path, nil
}

// nativeEndian is the host byte order used for on-disk ASN fields (spec §9
// open item, decided policy (b) in SPEC_FULL.md §10.5: each stored/wire
// encoding is tagged with the endianness it was written in; within a
// single running process, "native" is simply whatever this binary's
// architecture uses).
var nativeEndian = binary.NativeEndian
