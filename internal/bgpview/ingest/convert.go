// Package ingest converts the wire-parsed output of internal/bgp and
// internal/bmp into bgpelem.BgpElem records the engine consumes, the way
// the teacher's internal/state and internal/history pipelines turned
// DecodeUnicastPrefix/DecodePeerMessage JSON into ParsedRoute rows.
package ingest

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/bgpview/bgpview/internal/bgp"
	"github.com/bgpview/bgpview/internal/bgpelem"
	"github.com/bgpview/bgpview/internal/bgpview/pathstore"
	"github.com/bgpview/bgpview/internal/bgpview/view"
)

// PeerContext carries the session identity a RouteEvent doesn't itself
// know: which collector observed it, and which peer sent it.
type PeerContext struct {
	Collector string
	PeerIP    netip.Addr
	PeerASN   uint32
}

// RouteEventToElem converts one bgp.RouteEvent, plus the session context it
// was seen under, into a BgpElem ready for Engine.ProcessElem. ts is the
// BMP per-peer header timestamp, not anything carried on RouteEvent itself.
func RouteEventToElem(ev *bgp.RouteEvent, ctx PeerContext, ts uint32, recordType bgpelem.RecordType) (*bgpelem.BgpElem, error) {
	pfx, err := view.ParsePfx(ev.Prefix)
	if err != nil {
		return nil, fmt.Errorf("ingest: parsing prefix %q: %w", ev.Prefix, err)
	}

	segs, err := ParseASPathString(ev.ASPath)
	if err != nil {
		return nil, fmt.Errorf("ingest: parsing as_path %q: %w", ev.ASPath, err)
	}

	elemType := bgpelem.ElemAnnounce
	if recordType == bgpelem.RecordRIB {
		elemType = bgpelem.ElemRIB
	} else if ev.Action == "D" {
		elemType = bgpelem.ElemWithdrawal
	}

	return &bgpelem.BgpElem{
		RecordType:   recordType,
		RecordStatus: bgpelem.StatusValid,
		Ts:           ts,
		Collector:    ctx.Collector,
		PeerIP:       ctx.PeerIP,
		PeerASN:      ctx.PeerASN,
		ElemType:     elemType,
		Pfx:          pfx,
		AsPath:       segs,
	}, nil
}

// StateElem builds a session-state BgpElem (engine FSM transition) for a
// BMP Peer Up / Peer Down message, which carry no AS-path or prefix.
func StateElem(ctx PeerContext, ts uint32, state bgpelem.FSMState) *bgpelem.BgpElem {
	return &bgpelem.BgpElem{
		RecordType:   bgpelem.RecordUpdate,
		RecordStatus: bgpelem.StatusValid,
		Ts:           ts,
		Collector:    ctx.Collector,
		PeerIP:       ctx.PeerIP,
		PeerASN:      ctx.PeerASN,
		ElemType:     bgpelem.ElemState,
		NewFSMState:  state,
	}
}

// ParseASPathString parses the space/bracket-delimited AS-path text that
// internal/bgp's parseASPath produces (bare ASNs for AS_SEQUENCE, comma
// lists wrapped in {}/()/[] for AS_SET/AS_CONFED_SEQUENCE/AS_CONFED_SET)
// back into the tagged-union segments pathstore.InsertPath expects. A run
// of consecutive bare ASNs collapses into a single SEQ segment, mirroring
// the ambiguity already present in how parseASPath joins adjacent
// AS_SEQUENCE segments with a bare space.
func ParseASPathString(s string) ([]pathstore.Segment, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var segs []pathstore.Segment
	var bare []uint32

	flushBare := func() {
		if len(bare) == 0 {
			return
		}
		segs = append(segs, pathstore.Segment{Kind: pathstore.SegSeq, ASNs: append([]uint32(nil), bare...)})
		bare = bare[:0]
	}

	i := 0
	for i < len(s) {
		switch s[i] {
		case ' ':
			i++
		case '{', '(', '[':
			flushBare()
			open := s[i]
			closeCh := matchingClose(open)
			end := strings.IndexByte(s[i:], closeCh)
			if end < 0 {
				return nil, fmt.Errorf("ingest: unterminated %q segment in as_path %q", open, s)
			}
			inner := s[i+1 : i+end]
			asns, err := parseASNList(inner)
			if err != nil {
				return nil, err
			}
			segs = append(segs, pathstore.Segment{Kind: segmentKindFor(open), ASNs: asns})
			i += end + 1
		default:
			j := i
			for j < len(s) && s[j] != ' ' {
				j++
			}
			n, err := strconv.ParseUint(s[i:j], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("ingest: invalid ASN %q in as_path %q: %w", s[i:j], s, err)
			}
			bare = append(bare, uint32(n))
			i = j
		}
	}
	flushBare()
	return segs, nil
}

func matchingClose(open byte) byte {
	switch open {
	case '{':
		return '}'
	case '(':
		return ')'
	case '[':
		return ']'
	default:
		return 0
	}
}

func segmentKindFor(open byte) pathstore.SegmentKind {
	switch open {
	case '{':
		return pathstore.SegSet
	case '(':
		return pathstore.SegConfedSeq
	case '[':
		return pathstore.SegConfedSet
	default:
		return pathstore.SegSeq
	}
}

func parseASNList(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	asns := make([]uint32, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("ingest: invalid ASN %q in segment %q: %w", p, s, err)
		}
		asns = append(asns, uint32(n))
	}
	return asns, nil
}
