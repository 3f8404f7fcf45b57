// Package bgpelem defines BgpElem, the wire shape of one decoded BGP element
// as produced by the (out-of-scope) record source and consumed by the
// routing-table state engine (spec §4.7, SPEC_FULL.md §3).
package bgpelem

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/bgpview/bgpview/internal/bgpview/bgperr"
	"github.com/bgpview/bgpview/internal/bgpview/pathstore"
	"github.com/bgpview/bgpview/internal/bgpview/view"
)

// RecordType distinguishes a full RIB dump record from a live UPDATE record.
type RecordType uint8

const (
	RecordRIB RecordType = iota + 1
	RecordUpdate
)

// RecordStatus classifies whether a record parsed cleanly (spec §4.7
// failure semantics: "CORRUPTED records increment a counter and are
// dropped. EMPTY records are counted but otherwise ignored.").
type RecordStatus uint8

const (
	StatusValid RecordStatus = iota + 1
	StatusCorrupted
	StatusEmpty
)

// ElemType is the kind of routing event carried by the record.
type ElemType uint8

const (
	ElemRIB ElemType = iota + 1
	ElemAnnounce
	ElemWithdrawal
	ElemState
)

func (e ElemType) String() string {
	switch e {
	case ElemRIB:
		return "rib"
	case ElemAnnounce:
		return "announce"
	case ElemWithdrawal:
		return "withdrawal"
	case ElemState:
		return "state"
	default:
		return "unknown"
	}
}

// FSMState mirrors the per-peer FSM states named in spec §4.7.
type FSMState uint8

const (
	FSMUnknown FSMState = iota
	FSMIdle
	FSMConnect
	FSMActive
	FSMOpenSent
	FSMOpenConfirm
	FSMEstablished
)

func (s FSMState) String() string {
	switch s {
	case FSMIdle:
		return "idle"
	case FSMConnect:
		return "connect"
	case FSMActive:
		return "active"
	case FSMOpenSent:
		return "opensent"
	case FSMOpenConfirm:
		return "openconfirm"
	case FSMEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// BgpElem is one decoded input record (spec §4.7). AsPath carries the raw
// segment list already parsed by the upstream BGP attribute decoder
// (internal/bgp, kept and adapted from the teacher — see DESIGN.md) so the
// engine can call straight into pathstore without touching wire bytes.
type BgpElem struct {
	RecordType   RecordType
	RecordStatus RecordStatus
	Ts           uint32
	Collector    string
	PeerIP       netip.Addr
	PeerASN      uint32
	ElemType     ElemType
	Pfx          view.Pfx
	AsPath       []pathstore.Segment
	NewFSMState  FSMState
}

// Decode parses one goBMP-shaped JSON record into a BgpElem, following the
// teacher's DecodeUnicastPrefix style (raw map[string]any plus small
// type-coercing field helpers, since upstream producers are loose about
// whether numeric fields arrive as JSON numbers or strings).
func Decode(data []byte) (*BgpElem, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, bgperr.Wrap(bgperr.InvalidFormat, err, "json unmarshal bgp elem")
	}

	e := &BgpElem{RecordStatus: StatusValid}

	switch strings.ToLower(stringField(raw, "record_type")) {
	case "rib":
		e.RecordType = RecordRIB
	case "update", "":
		e.RecordType = RecordUpdate
	default:
		return nil, bgperr.New(bgperr.InvalidFormat, "unknown record_type %q", stringField(raw, "record_type"))
	}

	switch strings.ToLower(stringField(raw, "record_status")) {
	case "corrupted":
		e.RecordStatus = StatusCorrupted
		return e, nil
	case "empty":
		e.RecordStatus = StatusEmpty
		return e, nil
	}

	e.Ts = uint32(int64Field(raw["ts"]))
	e.Collector = stringField(raw, "collector")
	if ipStr := stringField(raw, "peer_ip"); ipStr != "" {
		ip, err := netip.ParseAddr(ipStr)
		if err != nil {
			return nil, bgperr.Wrap(bgperr.InvalidFormat, err, "peer_ip %q", ipStr)
		}
		e.PeerIP = ip
	}
	e.PeerASN = uint32(int64Field(raw["peer_asn"]))

	switch strings.ToLower(stringField(raw, "elem_type")) {
	case "rib":
		e.ElemType = ElemRIB
	case "announce":
		e.ElemType = ElemAnnounce
	case "withdrawal":
		e.ElemType = ElemWithdrawal
	case "state":
		e.ElemType = ElemState
	default:
		return nil, bgperr.New(bgperr.InvalidFormat, "unknown elem_type %q", stringField(raw, "elem_type"))
	}

	if pfxStr := stringField(raw, "pfx"); pfxStr != "" {
		pfx, err := view.ParsePfx(pfxStr)
		if err != nil {
			return nil, bgperr.Wrap(bgperr.InvalidFormat, err, "pfx %q", pfxStr)
		}
		e.Pfx = pfx
	}

	if segs, ok := raw["as_path"]; ok {
		path, err := decodeAsPathField(segs)
		if err != nil {
			return nil, err
		}
		e.AsPath = path
	}

	if fsm := stringField(raw, "new_fsm_state"); fsm != "" {
		state, err := parseFSMState(fsm)
		if err != nil {
			return nil, err
		}
		e.NewFSMState = state
	}

	return e, nil
}

func parseFSMState(s string) (FSMState, error) {
	switch strings.ToLower(s) {
	case "idle":
		return FSMIdle, nil
	case "connect":
		return FSMConnect, nil
	case "active":
		return FSMActive, nil
	case "opensent":
		return FSMOpenSent, nil
	case "openconfirm":
		return FSMOpenConfirm, nil
	case "established":
		return FSMEstablished, nil
	default:
		return FSMUnknown, bgperr.New(bgperr.InvalidFormat, "unknown new_fsm_state %q", s)
	}
}

// decodeAsPathField accepts as_path either as a flat array of ASNs (a
// single SEQ segment, the common case) or as an array of
// {kind, asns} segment objects (needed to express SET/CONFED_SET paths).
func decodeAsPathField(v any) ([]pathstore.Segment, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, bgperr.New(bgperr.InvalidFormat, "as_path must be an array")
	}
	if len(arr) == 0 {
		return nil, nil
	}
	if _, flat := arr[0].(float64); flat {
		asns := make([]uint32, 0, len(arr))
		for _, item := range arr {
			n, ok := item.(float64)
			if !ok {
				return nil, bgperr.New(bgperr.InvalidFormat, "as_path element %v is not numeric", item)
			}
			asns = append(asns, uint32(n))
		}
		return []pathstore.Segment{{Kind: pathstore.SegSeq, ASNs: asns}}, nil
	}

	segs := make([]pathstore.Segment, 0, len(arr))
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, bgperr.New(bgperr.InvalidFormat, "as_path segment %v is not an object", item)
		}
		kind, err := parseSegmentKind(stringField(obj, "kind"))
		if err != nil {
			return nil, err
		}
		asnsRaw, _ := obj["asns"].([]any)
		asns := make([]uint32, 0, len(asnsRaw))
		for _, a := range asnsRaw {
			n, ok := a.(float64)
			if !ok {
				return nil, bgperr.New(bgperr.InvalidFormat, "as_path segment asn %v is not numeric", a)
			}
			asns = append(asns, uint32(n))
		}
		segs = append(segs, pathstore.Segment{Kind: kind, ASNs: asns})
	}
	return segs, nil
}

func parseSegmentKind(s string) (pathstore.SegmentKind, error) {
	switch strings.ToUpper(s) {
	case "SET":
		return pathstore.SegSet, nil
	case "SEQ", "":
		return pathstore.SegSeq, nil
	case "CONFED_SET":
		return pathstore.SegConfedSet, nil
	case "CONFED_SEQ":
		return pathstore.SegConfedSeq, nil
	default:
		return 0, bgperr.New(bgperr.InvalidFormat, "unknown as_path segment kind %q", s)
	}
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		switch s := v.(type) {
		case string:
			return s
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		}
	}
	return ""
}

func int64Field(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

// String gives a compact description useful in logs and error messages.
func (e *BgpElem) String() string {
	return fmt.Sprintf("%s@%d %s/%s %s", e.Collector, e.Ts, e.PeerIP, e.ElemType, e.Pfx)
}
