// Package engine implements the routing-table state engine (C7): a
// per-collector/per-peer FSM that consumes a stream of BgpElem records and
// drives a view.View through RIB/UC-RIB reconciliation and interval
// roll-ups.
package engine

import (
	"errors"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/bgpview/bgpview/internal/bgpelem"
	"github.com/bgpview/bgpview/internal/bgpview/bgperr"
	"github.com/bgpview/bgpview/internal/bgpview/pathstore"
	"github.com/bgpview/bgpview/internal/bgpview/sigstore"
	"github.com/bgpview/bgpview/internal/bgpview/view"
)

// DeprecatedInfoInterval is the staleness cutoff (seconds) past which an
// inactive per-(collector,peer,pfx) record is dropped at interval roll-up.
const DeprecatedInfoInterval = 24 * 60 * 60

type pfxStatus uint8

const (
	statusAnnounced pfxStatus = 1 << iota
	statusUCAnnounced
)

// pfxState is the per-(collector,peer,pfx) engine record.
type pfxState struct {
	ucPathID   pathstore.PathID
	bgpTimeLast uint32
	status      pfxStatus

	// seenLiveDuringUC marks a pfx touched by a live ANNOUNCE while a UC RIB
	// window was open for its peer; if it's still only uc-announced (never
	// matched by a prior ref-RIB entry) at promotion time, that means its
	// only source was the live stream racing the RIB dump, not the dump
	// itself — tracked so promotion can distinguish a genuinely RIB-sourced
	// entry from one that only ever existed as a live announce.
	seenLiveDuringUC bool
}

// peerState is the per-(collector,peer) engine record.
type peerState struct {
	peerID   sigstore.PeerID
	fsmState bgpelem.FSMState

	refRibStart, refRibEnd uint32
	ucRibStart, ucRibEnd   uint32
	ucOpen                 bool

	// interval counters, reset every IntervalEnd.
	ribCnt, announceCnt, withdrawCnt, stateCnt uint64
	stateMessagesCnt                           uint64
	positiveMismatches, negativeMismatches     uint64

	pfxs map[view.Pfx]*pfxState
}

func (ps *peerState) pfxFor(pfx view.Pfx) *pfxState {
	st, ok := ps.pfxs[pfx]
	if !ok {
		st = &pfxState{}
		ps.pfxs[pfx] = st
	}
	return st
}

// sessionState is a coarse up/down/unknown summary for a collector, derived
// from whether any of its peers are currently ESTABLISHED.
type sessionState uint8

const (
	sessionUnknown sessionState = iota
	sessionUp
	sessionDown
)

// collectorState is the per-collector engine record.
type collectorState struct {
	peers *roaring.Bitmap // compact PeerID set

	refRibStart, refRibEnd uint32
	ucRibStart, ucRibEnd   uint32
	state                  sessionState

	elemCounters           map[bgpelem.ElemType]uint64
	corruptedCnt, emptyCnt uint64
	eovribCnt              uint64
}

// Engine is the routing-table state engine (C7). It owns no view of its
// own; the caller constructs a view.View (sharing its signature and path
// stores) and passes it in, matching the ownership split where an external
// caller injects the view.
type Engine struct {
	view *view.View

	collectors map[string]*collectorState
	peers      map[string]map[sigstore.PeerID]*peerState

	barrierTs   uint32
	haveBarrier bool
}

// New creates an Engine that drives v.
func New(v *view.View) *Engine {
	return &Engine{
		view:       v,
		collectors: make(map[string]*collectorState),
		peers:      make(map[string]map[sigstore.PeerID]*peerState),
	}
}

// View returns the view.View this engine drives.
func (e *Engine) View() *view.View { return e.view }

func (e *Engine) collectorFor(name string) *collectorState {
	cs, ok := e.collectors[name]
	if !ok {
		cs = &collectorState{peers: roaring.New(), elemCounters: make(map[bgpelem.ElemType]uint64)}
		e.collectors[name] = cs
		e.peers[name] = make(map[sigstore.PeerID]*peerState)
	}
	return cs
}

func (e *Engine) peerStateFor(collector string, peerID sigstore.PeerID) *peerState {
	m := e.peers[collector]
	ps, ok := m[peerID]
	if !ok {
		ps = &peerState{peerID: peerID, pfxs: make(map[view.Pfx]*pfxState)}
		m[peerID] = ps
	}
	return ps
}

// ProcessElem applies one BgpElem to the engine state and, where
// appropriate, to the underlying view. Unknown collectors and peers are
// auto-registered. Corrupted records increment a counter and are dropped;
// empty records are counted and otherwise ignored. The engine never aborts
// on malformed input.
func (e *Engine) ProcessElem(el *bgpelem.BgpElem) error {
	cs := e.collectorFor(el.Collector)

	switch el.RecordStatus {
	case bgpelem.StatusCorrupted:
		cs.corruptedCnt++
		return nil
	case bgpelem.StatusEmpty:
		cs.emptyCnt++
		return nil
	}

	if e.haveBarrier && el.Ts <= e.barrierTs {
		return bgperr.New(bgperr.OutOfOrder, "element ts %d at or before interval barrier %d", el.Ts, e.barrierTs)
	}

	cs.elemCounters[el.ElemType]++

	peerID, err := e.view.AddPeer(el.Collector, el.PeerIP, el.PeerASN)
	if err != nil {
		return err
	}
	cs.peers.Add(uint32(peerID))

	ps := e.peerStateFor(el.Collector, peerID)

	switch el.ElemType {
	case bgpelem.ElemRIB:
		return e.handleRIB(cs, ps, el)
	case bgpelem.ElemAnnounce:
		return e.handleAnnounce(ps, peerID, el)
	case bgpelem.ElemWithdrawal:
		return e.handleWithdrawal(ps, peerID, el)
	case bgpelem.ElemState:
		return e.handleState(cs, ps, peerID, el)
	default:
		return bgperr.New(bgperr.InvalidArg, "unknown elem_type %v", el.ElemType)
	}
}

// handleRIB covers both the RIB-begin marker (no prefix attached: opens a
// UC RIB window if one isn't already open) and individual RIB entries
// (upserts per-pfx UC state).
func (e *Engine) handleRIB(cs *collectorState, ps *peerState, el *bgpelem.BgpElem) error {
	ps.ribCnt++

	if !ps.ucOpen {
		ps.ucOpen = true
		ps.ucRibStart = el.Ts
		ps.ucRibEnd = el.Ts
		if cs.ucRibStart == 0 || el.Ts < cs.ucRibStart {
			cs.ucRibStart = el.Ts
		}
	}

	if !el.Pfx.IsValid() {
		// RIB-begin marker only; no entry to record.
		return nil
	}

	pathID, err := e.view.PathStore.InsertPath(pathstore.AsPath{Segments: el.AsPath}, true)
	if err != nil {
		return err
	}

	st := ps.pfxFor(el.Pfx)
	if el.Ts >= st.bgpTimeLast {
		st.ucPathID = pathID
		st.bgpTimeLast = el.Ts
	}
	st.status |= statusUCAnnounced

	if el.Ts > ps.ucRibEnd {
		ps.ucRibEnd = el.Ts
	}
	if el.Ts > cs.ucRibEnd {
		cs.ucRibEnd = el.Ts
	}
	return nil
}

// handleAnnounce records a live announce either into the open UC RIB window
// (if one exists for this peer) or directly against the view, per the
// tie-breaking rule: a UC entry only loses to a strictly newer live update,
// so equal timestamps always favor the RIB dump.
func (e *Engine) handleAnnounce(ps *peerState, peerID sigstore.PeerID, el *bgpelem.BgpElem) error {
	ps.announceCnt++

	if ps.fsmState != bgpelem.FSMEstablished {
		return nil
	}
	if el.Ts < ps.refRibStart {
		return nil // positive-stale: older than the peer's trusted epoch
	}

	pathID, err := e.view.PathStore.InsertPath(pathstore.AsPath{Segments: el.AsPath}, true)
	if err != nil {
		return err
	}

	if ps.ucOpen && el.Ts >= ps.ucRibStart {
		st := ps.pfxFor(el.Pfx)
		st.seenLiveDuringUC = true
		if el.Ts > st.bgpTimeLast {
			st.ucPathID = pathID
			st.bgpTimeLast = el.Ts
		}
		st.status |= statusUCAnnounced
		return nil
	}

	if err := e.view.AddPfxPeer(el.Pfx, peerID, pathID); err != nil {
		return err
	}
	if _, err := e.view.ActivatePfxPeer(el.Pfx, peerID); err != nil {
		return err
	}

	st := ps.pfxFor(el.Pfx)
	st.status |= statusAnnounced
	st.bgpTimeLast = el.Ts
	return nil
}

// handleWithdrawal clears UC membership if inside an open RIB window,
// otherwise deactivates the live pfx-peer (leaving it present, per the
// view's own invariants — withdrawal never deletes the edge).
func (e *Engine) handleWithdrawal(ps *peerState, peerID sigstore.PeerID, el *bgpelem.BgpElem) error {
	ps.withdrawCnt++

	if ps.fsmState != bgpelem.FSMEstablished {
		return nil
	}

	if ps.ucOpen && el.Ts >= ps.ucRibStart {
		if st, ok := ps.pfxs[el.Pfx]; ok {
			st.status &^= statusUCAnnounced
		}
		return nil
	}

	if el.Ts < ps.refRibStart {
		return nil // positive-stale
	}

	if _, err := e.view.DeactivatePfxPeer(el.Pfx, peerID); err != nil {
		if errors.Is(err, bgperr.ErrNotFound) {
			return nil
		}
		return err
	}

	if st, ok := ps.pfxs[el.Pfx]; ok {
		st.status &^= statusAnnounced
		st.bgpTimeLast = el.Ts
	}
	return nil
}

// handleState updates the peer FSM, cascading a down transition to every
// pfx-peer on the view per the view's own DeactivatePeer semantics and
// opening a new trust epoch, or resetting interval counters on a fresh
// ESTABLISHED transition.
func (e *Engine) handleState(cs *collectorState, ps *peerState, peerID sigstore.PeerID, el *bgpelem.BgpElem) error {
	ps.stateCnt++
	prev := ps.fsmState

	if prev != bgpelem.FSMEstablished && el.NewFSMState != bgpelem.FSMEstablished {
		ps.stateMessagesCnt++
	}
	ps.fsmState = el.NewFSMState

	switch {
	case prev == bgpelem.FSMEstablished && el.NewFSMState != bgpelem.FSMEstablished:
		if _, err := e.view.DeactivatePeer(peerID); err != nil {
			return err
		}
		ps.refRibStart = el.Ts
		ps.refRibEnd = 0
		ps.ucOpen = false
		ps.ucRibStart, ps.ucRibEnd = 0, 0

	case prev != bgpelem.FSMEstablished && el.NewFSMState == bgpelem.FSMEstablished:
		ps.ribCnt, ps.announceCnt, ps.withdrawCnt, ps.stateCnt = 0, 0, 0, 0
		ps.positiveMismatches, ps.negativeMismatches, ps.stateMessagesCnt = 0, 0, 0
	}

	cs.state = collectorSessionState(cs.peers, e.peers[el.Collector])
	return nil
}

// collectorSessionState summarizes a collector's session as up if any of
// its known peers is ESTABLISHED, down if it has peers but none are, or
// unknown if it has none yet.
func collectorSessionState(ids *roaring.Bitmap, states map[sigstore.PeerID]*peerState) sessionState {
	if ids.IsEmpty() {
		return sessionUnknown
	}
	it := ids.Iterator()
	for it.HasNext() {
		id := sigstore.PeerID(it.Next())
		if ps, ok := states[id]; ok && ps.fsmState == bgpelem.FSMEstablished {
			return sessionUp
		}
	}
	return sessionDown
}

// IntervalStart signals the beginning of a new interval. The engine has no
// per-interval setup of its own; it exists as an explicit call so callers
// have a symmetric pair with IntervalEnd.
func (e *Engine) IntervalStart(ts uint32) error {
	if e.haveBarrier && ts <= e.barrierTs {
		return bgperr.New(bgperr.OutOfOrder, "interval_start(%d) at or before prior barrier %d", ts, e.barrierTs)
	}
	return nil
}

// PeerStats is one peer's interval snapshot, returned by IntervalEnd.
type PeerStats struct {
	Collector string
	PeerID    sigstore.PeerID
	FSMState  bgpelem.FSMState

	RibCnt, AnnounceCnt, WithdrawCnt, StateCnt uint64
	StateMessagesCnt                           uint64
	PositiveMismatches, NegativeMismatches     uint64
}

// CollectorStats is one collector's interval snapshot, returned by
// IntervalEnd.
type CollectorStats struct {
	Collector              string
	PeerCount              uint64
	CorruptedCnt, EmptyCnt uint64
	EOVRIBCnt              uint64
	ElemCounters           map[bgpelem.ElemType]uint64
}

// IntervalStats is the full roll-up snapshot returned by IntervalEnd.
type IntervalStats struct {
	Ts         uint32
	EOVRIB     bool
	Collectors []CollectorStats
	Peers      []PeerStats
}

// IntervalEnd applies pending end-of-valid-RIB promotions (if eovrib is
// set), emits a statistics snapshot, sweeps stale inactive per-pfx state,
// and then becomes a barrier: ProcessElem rejects any further element at or
// before ts with OutOfOrder. It does not reset the view — the view
// represents cumulative active routing state.
func (e *Engine) IntervalEnd(ts uint32, eovrib bool) (IntervalStats, error) {
	if e.haveBarrier && ts <= e.barrierTs {
		return IntervalStats{}, bgperr.New(bgperr.OutOfOrder, "interval_end(%d) at or before prior barrier %d", ts, e.barrierTs)
	}

	if eovrib {
		for _, peerMap := range e.peers {
			for _, ps := range peerMap {
				if err := e.promote(ps); err != nil {
					return IntervalStats{}, err
				}
			}
		}
	}

	stats := IntervalStats{Ts: ts, EOVRIB: eovrib}
	for name, cs := range e.collectors {
		if eovrib {
			cs.eovribCnt++
		}
		elemCounters := make(map[bgpelem.ElemType]uint64, len(cs.elemCounters))
		for k, v := range cs.elemCounters {
			elemCounters[k] = v
		}
		stats.Collectors = append(stats.Collectors, CollectorStats{
			Collector:    name,
			PeerCount:    cs.peers.GetCardinality(),
			CorruptedCnt: cs.corruptedCnt,
			EmptyCnt:     cs.emptyCnt,
			EOVRIBCnt:    cs.eovribCnt,
			ElemCounters: elemCounters,
		})

		for _, ps := range e.peers[name] {
			stats.Peers = append(stats.Peers, PeerStats{
				Collector:          name,
				PeerID:             ps.peerID,
				FSMState:           ps.fsmState,
				RibCnt:             ps.ribCnt,
				AnnounceCnt:        ps.announceCnt,
				WithdrawCnt:        ps.withdrawCnt,
				StateCnt:           ps.stateCnt,
				StateMessagesCnt:   ps.stateMessagesCnt,
				PositiveMismatches: ps.positiveMismatches,
				NegativeMismatches: ps.negativeMismatches,
			})
			ps.ribCnt, ps.announceCnt, ps.withdrawCnt, ps.stateCnt = 0, 0, 0, 0
			ps.positiveMismatches, ps.negativeMismatches, ps.stateMessagesCnt = 0, 0, 0
		}
	}

	e.sweepDeprecated(ts)

	e.barrierTs = ts
	e.haveBarrier = true
	return stats, nil
}

// promote applies end-of-valid-RIB reconciliation for one peer: UC entries
// get activated and become the new reference RIB, previously-announced
// entries absent from the UC RIB get deactivated (a positive mismatch), and
// UC-only entries never also seen live during construction are counted as
// a negative mismatch.
func (e *Engine) promote(ps *peerState) error {
	if !ps.ucOpen {
		return nil
	}

	for pfx, st := range ps.pfxs {
		wasAnnounced := st.status&statusAnnounced != 0
		isUC := st.status&statusUCAnnounced != 0

		switch {
		case isUC:
			if err := e.view.AddPfxPeer(pfx, ps.peerID, st.ucPathID); err != nil {
				return err
			}
			if _, err := e.view.ActivatePfxPeer(pfx, ps.peerID); err != nil {
				return err
			}
			if !wasAnnounced && !st.seenLiveDuringUC {
				ps.negativeMismatches++
			}
			st.status = statusAnnounced

		case wasAnnounced:
			if _, err := e.view.DeactivatePfxPeer(pfx, ps.peerID); err != nil {
				return err
			}
			ps.positiveMismatches++
			st.status = 0
		}

		st.seenLiveDuringUC = false
	}

	ps.refRibStart, ps.refRibEnd = ps.ucRibStart, ps.ucRibEnd
	ps.ucRibStart, ps.ucRibEnd = 0, 0
	ps.ucOpen = false
	return nil
}

// sweepDeprecated drops per-(collector,peer,pfx) state that is both
// inactive (status has neither flag set) and older than
// ts-DeprecatedInfoInterval, releasing memory without touching the view
// (the view's own pfx-peer entries are only ever dropped via
// view.GC()/RemovePfxPeer, never implicitly by the engine).
func (e *Engine) sweepDeprecated(ts uint32) {
	var cutoff uint32
	if ts > DeprecatedInfoInterval {
		cutoff = ts - DeprecatedInfoInterval
	}
	for _, peerMap := range e.peers {
		for _, ps := range peerMap {
			for pfx, st := range ps.pfxs {
				if st.status == 0 && st.bgpTimeLast < cutoff {
					delete(ps.pfxs, pfx)
				}
			}
		}
	}
}
