package ingest

import (
	"fmt"
	"net/netip"

	"go.uber.org/zap"

	"github.com/bgpview/bgpview/internal/bgp"
	"github.com/bgpview/bgpview/internal/bgpelem"
	"github.com/bgpview/bgpview/internal/bgpview/engine"
	"github.com/bgpview/bgpview/internal/bmp"
)

// Replayer walks an OpenBMP-framed capture file (goBMP's raw BMP output
// format) and feeds every
// frame through the engine, one BMP message at a time. It exists to let
// bgpview-replay reconstruct view state from a saved capture without
// standing up a Kafka broker, mirroring how the teacher's offline tools
// replayed a goBMP dump file through the same ingest path production used.
type Replayer struct {
	eng       *engine.Engine
	collector string
	log       *zap.Logger

	framesProcessed uint64
	messagesApplied uint64
	skipped         uint64
}

// NewReplayer builds a Replayer that applies every parsed element to eng,
// tagging every record with the given collector name (a capture file
// carries no collector identity of its own; the operator names it).
func NewReplayer(eng *engine.Engine, collector string, log *zap.Logger) *Replayer {
	return &Replayer{eng: eng, collector: collector, log: log}
}

// Stats returns running counters for progress reporting.
func (r *Replayer) Stats() (frames, messages, skipped uint64) {
	return r.framesProcessed, r.messagesApplied, r.skipped
}

// Feed walks every OpenBMP frame in data in order, applying each to the
// engine. A frame that fails to decode is skipped (counted, logged at
// debug) rather than aborting the replay, matching ProcessElem's own
// never-abort-on-malformed-input contract.
func (r *Replayer) Feed(data []byte) error {
	offset := 0
	for offset < len(data) {
		frameLen, err := bmp.FrameLength(data[offset:])
		if err != nil {
			return fmt.Errorf("ingest: framing capture at offset %d: %w", offset, err)
		}
		if frameLen <= 0 || offset+frameLen > len(data) {
			return fmt.Errorf("ingest: frame at offset %d overruns capture (len %d)", offset, frameLen)
		}

		frame := data[offset : offset+frameLen]
		r.framesProcessed++

		payload, err := bmp.DecodeOpenBMPFrame(frame, 0)
		if err != nil {
			r.skipped++
			r.log.Debug("skipping undecodable openbmp frame", zap.Error(err), zap.Int("offset", offset))
			offset += frameLen
			continue
		}

		if err := r.applyBMPMessage(payload); err != nil {
			r.skipped++
			r.log.Debug("skipping unapplicable bmp message", zap.Error(err), zap.Int("offset", offset))
		}

		offset += frameLen
	}
	return nil
}

func (r *Replayer) applyBMPMessage(payload []byte) error {
	parsed, err := bmp.Parse(payload)
	if err != nil {
		return fmt.Errorf("parsing bmp message: %w", err)
	}

	switch parsed.MsgType {
	case bmp.MsgTypeRouteMonitoring:
		return r.applyRouteMonitoring(parsed)
	case bmp.MsgTypePeerUp:
		return r.applyState(parsed, bgpelem.FSMEstablished)
	case bmp.MsgTypePeerDown:
		return r.applyState(parsed, bgpelem.FSMIdle)
	default:
		return nil
	}
}

func (r *Replayer) applyRouteMonitoring(parsed *bmp.ParsedBMP) error {
	if len(parsed.BGPData) == 0 {
		return nil
	}

	ctx, ts := r.peerContext(parsed)

	events, err := bgp.ParseUpdate(parsed.BGPData, parsed.HasAddPath)
	if err != nil {
		return fmt.Errorf("parsing bgp update: %w", err)
	}

	recordType := bgpelem.RecordUpdate
	if parsed.IsLocRIB {
		recordType = bgpelem.RecordRIB
	}

	for _, ev := range events {
		el, err := RouteEventToElem(ev, ctx, ts, recordType)
		if err != nil {
			r.skipped++
			r.log.Debug("skipping unconvertible route event", zap.Error(err), zap.String("prefix", ev.Prefix))
			continue
		}
		if err := r.eng.ProcessElem(el); err != nil {
			return fmt.Errorf("applying route elem: %w", err)
		}
		r.messagesApplied++
	}
	return nil
}

func (r *Replayer) applyState(parsed *bmp.ParsedBMP, state bgpelem.FSMState) error {
	ctx, ts := r.peerContext(parsed)
	el := StateElem(ctx, ts, state)
	if err := r.eng.ProcessElem(el); err != nil {
		return fmt.Errorf("applying state elem: %w", err)
	}
	r.messagesApplied++
	return nil
}

// peerContext derives the PeerContext and timestamp from the fixed-offset
// per-peer header fields available on any RouteMonitoring/PeerUp/PeerDown
// message that carried a per-peer header.
func (r *Replayer) peerContext(parsed *bmp.ParsedBMP) (PeerContext, uint32) {
	ctx := PeerContext{Collector: r.collector}
	if addr, err := netip.ParseAddr(bmp.RouterIDFromPeerHeader(parsed.PeerHeader)); err == nil {
		ctx.PeerIP = addr
	}
	ctx.PeerASN = bmp.PeerASNFromPeerHeader(parsed.PeerHeader)
	return ctx, bmp.TimestampFromPeerHeader(parsed.PeerHeader)
}
