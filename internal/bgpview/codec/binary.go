// Package codec implements the Binary Codec (C5) and Diff Codec (C6): a
// framed, magic-delimited wire format for a View snapshot, and a
// parent-relative diff of two views sharing the same stores (spec §4.5,
// §4.6).
package codec

import (
	"encoding/binary"
	"io"
	"net/netip"

	"github.com/bgpview/bgpview/internal/bgpview/bgperr"
	"github.com/bgpview/bgpview/internal/bgpview/pathstore"
	"github.com/bgpview/bgpview/internal/bgpview/sigstore"
	"github.com/bgpview/bgpview/internal/bgpview/view"
)

// Magic markers, each a 32-bit big-endian word; a frame is VIEW_MAGIC
// followed immediately by one of the sub-magics below (spec §4.5, §6).
const (
	viewMagic uint32 = 0x42475056 // "BGPV"
	strtMagic uint32 = 0x53545254 // "STRT"
	pendMagic uint32 = 0x50454E44 // "PEND"
	pathMagic uint32 = 0x50415448 // "PATH"
	xendMagic uint32 = 0x58454E44 // "XEND"
	vendMagic uint32 = 0x56454E44 // "VEND"
)

// Each section is written as count-then-records-then-frame rather than
// records-then-frame-then-count: the count is what lets a reader consume
// exactly that many fixed-shape records without having to distinguish a
// record from the frame that follows it, the same length-prefixed shape
// the teacher's BMP TLV parser uses (type+len before data, never a
// sentinel search). The frame afterwards is a pure cross-check, read with
// a known byte count, still enforcing spec §4.5's "cross-check counts
// MUST match; mismatch yields CorruptStream" by construction — a short or
// long section fails the very next fixed-size read instead of silently
// desyncing.

// tagLittleEndian/tagBigEndian identify which byte order an encoded path's ASN fields
// were written in (SPEC_FULL.md §10.5): 0 for little-endian, 1 for
// big-endian. It is written once per path-section record, immediately
// before path_data, extending the spec's literal layout by one byte.
const (
	tagLittleEndian byte = 0
	tagBigEndian    byte = 1
)

func localOrderTag() byte {
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 1)
	if probe[0] == 1 {
		return tagLittleEndian
	}
	return tagBigEndian
}

// Filter selects which peers, pfxs, and pfx-peer edges Encode emits (spec
// §4.5: "Filter callback ... invoked at three granularities"). A nil
// function in any field means "include everything" at that granularity.
type Filter struct {
	Peer    func(id sigstore.PeerID, sig sigstore.Signature) bool
	Pfx     func(pfx view.Pfx) bool
	PfxPeer func(pfx view.Pfx, peerID sigstore.PeerID) bool
}

func (f Filter) includePeer(id sigstore.PeerID, sig sigstore.Signature) bool {
	return f.Peer == nil || f.Peer(id, sig)
}

func (f Filter) includePfx(pfx view.Pfx) bool {
	return f.Pfx == nil || f.Pfx(pfx)
}

func (f Filter) includePfxPeer(pfx view.Pfx, peerID sigstore.PeerID) bool {
	return f.PfxPeer == nil || f.PfxPeer(pfx, peerID)
}

func writeFrame(w io.Writer, sub uint32) error {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], viewMagic)
	binary.BigEndian.PutUint32(buf[4:8], sub)
	_, err := w.Write(buf[:])
	return err
}

// readFrame reads a 64-bit frame and checks it against want. allowEOFAtZero,
// when true, turns a clean io.EOF before any byte is read into io.EOF
// (propagated verbatim) instead of CorruptStream — used only at the very
// start of a view (spec §4.5: "EOF at start of view is the normal
// termination").
func readFrame(r io.Reader, want uint32, allowEOFAtZero bool) error {
	var buf [8]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		if allowEOFAtZero && n == 0 && err == io.EOF {
			return io.EOF
		}
		return bgperr.Wrap(bgperr.CorruptStream, err, "reading frame marker (want sub-magic %08x)", want)
	}
	gotView := binary.BigEndian.Uint32(buf[0:4])
	gotSub := binary.BigEndian.Uint32(buf[4:8])
	if gotView != viewMagic || gotSub != want {
		return bgperr.New(bgperr.CorruptStream, "frame marker mismatch: got %08x/%08x, want %08x/%08x", gotView, gotSub, viewMagic, want)
	}
	return nil
}

type pendingEdge struct {
	peerID sigstore.PeerID
	pathID pathstore.PathID
	active bool
}

type pfxEdges struct {
	pfx   view.Pfx
	edges []pendingEdge
}

// Encode writes v to w per spec §4.5, applying filter. Peers are written
// regardless of whether they carry any surviving pfx-peer, matching the
// view's own peer set (P5); pfxs with zero surviving edges after
// filtering are omitted entirely (spec §4.5).
func Encode(w io.Writer, v *view.View, filter Filter) error {
	if err := writeFrame(w, strtMagic); err != nil {
		return err
	}

	var timeBuf [4]byte
	binary.BigEndian.PutUint32(timeBuf[:], v.GetTime())
	if _, err := w.Write(timeBuf[:]); err != nil {
		return err
	}

	kept, pathOrder, pathWireIdx, err := collectFilteredEdges(v, filter)
	if err != nil {
		return err
	}

	if err := encodePeerSection(w, v, filter); err != nil {
		return err
	}
	if err := encodePathSection(w, v, pathOrder); err != nil {
		return err
	}
	if err := encodePfxSection(w, kept, pathWireIdx); err != nil {
		return err
	}

	return writeFrame(w, vendMagic)
}

// collectFilteredEdges walks every pfx once, applying filter at all three
// granularities, and returns the surviving (pfx, edges) list together with
// the set of paths those edges reference, in first-seen order — the path
// section must be fully written before the prefix section can reference
// it by wire index.
func collectFilteredEdges(v *view.View, filter Filter) ([]pfxEdges, []pathstore.PathID, map[pathstore.PathID]uint32, error) {
	var kept []pfxEdges
	pathWireIdx := make(map[pathstore.PathID]uint32)
	var pathOrder []pathstore.PathID

	pc := view.NewPfxCursor(v, view.FilterAll, view.FamilyFilterBoth)
	for pc.Next() {
		pfx, _, err := pc.Get()
		if err != nil {
			return nil, nil, nil, bgperr.Wrap(bgperr.Internal, err, "walking pfx cursor")
		}
		if !filter.includePfx(pfx) {
			continue
		}

		ppc, err := pc.Peers(view.FilterAll)
		if err != nil {
			return nil, nil, nil, bgperr.Wrap(bgperr.Internal, err, "opening pfx-peer cursor for %s", pfx)
		}

		var edges []pendingEdge
		for ppc.Next() {
			peerID, pp, err := ppc.Get()
			if err != nil {
				return nil, nil, nil, bgperr.Wrap(bgperr.Internal, err, "walking pfx-peer cursor for %s", pfx)
			}
			sig, err := v.SigStore.Lookup(peerID)
			if err != nil {
				return nil, nil, nil, bgperr.Wrap(bgperr.Internal, err, "looking up peer %d", peerID)
			}
			if !filter.includePeer(peerID, sig) || !filter.includePfxPeer(pfx, peerID) {
				continue
			}
			if _, ok := pathWireIdx[pp.PathID]; !ok {
				pathWireIdx[pp.PathID] = uint32(len(pathOrder))
				pathOrder = append(pathOrder, pp.PathID)
			}
			edges = append(edges, pendingEdge{peerID: peerID, pathID: pp.PathID, active: pp.Active})
		}
		if len(edges) == 0 {
			continue
		}
		kept = append(kept, pfxEdges{pfx: pfx, edges: edges})
	}

	return kept, pathOrder, pathWireIdx, nil
}

func encodePeerSection(w io.Writer, v *view.View, filter Filter) error {
	type rec struct {
		id  sigstore.PeerID
		sig sigstore.Signature
	}
	var recs []rec

	peerCur := view.NewPeerCursor(v, view.FilterAll)
	for peerCur.Next() {
		peerID, _, err := peerCur.Get()
		if err != nil {
			return bgperr.Wrap(bgperr.Internal, err, "walking peer cursor")
		}
		sig, err := v.SigStore.Lookup(peerID)
		if err != nil {
			return bgperr.Wrap(bgperr.Internal, err, "looking up peer %d", peerID)
		}
		if !filter.includePeer(peerID, sig) {
			continue
		}
		recs = append(recs, rec{id: peerID, sig: sig})
	}

	var countBuf [2]byte
	binary.BigEndian.PutUint16(countBuf[:], uint16(len(recs)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return err
	}
	for _, r := range recs {
		if err := writePeerRecord(w, r.id, r.sig); err != nil {
			return err
		}
	}
	return writeFrame(w, pendMagic)
}

func writePeerRecord(w io.Writer, id sigstore.PeerID, sig sigstore.Signature) error {
	if len(sig.Collector) > 255 {
		return bgperr.New(bgperr.Internal, "collector name %q exceeds 255 bytes", sig.Collector)
	}
	ipBytes := sig.PeerIP.AsSlice()
	if len(ipBytes) != 4 && len(ipBytes) != 16 {
		return bgperr.New(bgperr.Internal, "peer %d has invalid ip length %d", id, len(ipBytes))
	}

	head := make([]byte, 0, 2+1+len(sig.Collector)+1+len(ipBytes)+4)
	var idBuf [2]byte
	binary.BigEndian.PutUint16(idBuf[:], uint16(id))
	head = append(head, idBuf[:]...)
	head = append(head, byte(len(sig.Collector)))
	head = append(head, sig.Collector...)
	head = append(head, byte(len(ipBytes)))
	head = append(head, ipBytes...)
	var asnBuf [4]byte
	binary.BigEndian.PutUint32(asnBuf[:], sig.PeerASN)
	head = append(head, asnBuf[:]...)

	_, err := w.Write(head)
	return err
}

func encodePathSection(w io.Writer, v *view.View, pathOrder []pathstore.PathID) error {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(pathOrder)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return err
	}
	for _, pathID := range pathOrder {
		sp, err := v.PathStore.Get(pathID)
		if err != nil {
			return bgperr.Wrap(bgperr.Internal, err, "looking up path %+v", pathID)
		}
		if err := writePathRecord(w, pathID, sp); err != nil {
			return err
		}
	}
	return writeFrame(w, pathMagic)
}

func writePathRecord(w io.Writer, id pathstore.PathID, sp pathstore.StorePath) error {
	if len(sp.Encoding) > 0xFFFF {
		return bgperr.New(bgperr.Internal, "path %+v encoding exceeds 65535 bytes", id)
	}
	head := make([]byte, 0, 4+1+1+2+len(sp.Encoding))
	var idxBuf [4]byte
	binary.BigEndian.PutUint32(idxBuf[:], id.StoreIndex)
	head = append(head, idxBuf[:]...)
	isCore := byte(0)
	if sp.IsCore {
		isCore = 1
	}
	head = append(head, isCore)
	head = append(head, localOrderTag())
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(sp.Encoding)))
	head = append(head, lenBuf[:]...)
	head = append(head, sp.Encoding...)

	_, err := w.Write(head)
	return err
}

func encodePfxSection(w io.Writer, kept []pfxEdges, pathWireIdx map[pathstore.PathID]uint32) error {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(kept)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return err
	}
	for _, pe := range kept {
		if err := writePfxHeader(w, pe.pfx); err != nil {
			return err
		}
		var edgeCountBuf [2]byte
		binary.BigEndian.PutUint16(edgeCountBuf[:], uint16(len(pe.edges)))
		if _, err := w.Write(edgeCountBuf[:]); err != nil {
			return err
		}
		for _, edge := range pe.edges {
			var rec [7]byte
			binary.BigEndian.PutUint16(rec[0:2], uint16(edge.peerID))
			binary.BigEndian.PutUint32(rec[2:6], pathWireIdx[edge.pathID])
			if edge.active {
				rec[6] = 1
			}
			if _, err := w.Write(rec[:]); err != nil {
				return err
			}
		}
	}
	return writeFrame(w, xendMagic)
}

func writePfxHeader(w io.Writer, pfx view.Pfx) error {
	ipBytes := pfx.Addr().AsSlice()
	if len(ipBytes) != 4 && len(ipBytes) != 16 {
		return bgperr.New(bgperr.Internal, "pfx %s has invalid ip length %d", pfx, len(ipBytes))
	}
	head := make([]byte, 0, 1+len(ipBytes)+1)
	head = append(head, byte(len(ipBytes)))
	head = append(head, ipBytes...)
	head = append(head, byte(pfx.Bits()))
	_, err := w.Write(head)
	return err
}

// Decode reads one view from r per spec §4.5, interning peers and paths
// into sigStore/pathStore and building a fresh *view.View. The scratch
// view is only returned once every section's frame cross-check has
// passed; on any earlier CorruptStream/InvalidFormat failure, nil is
// returned and the caller's own state is never touched (SPEC_FULL.md
// §10.5). Interning into sigStore/pathStore along the way is safe even on
// a subsequent failure, since both stores' Insert/Intern are idempotent
// and side-effect-free for entries already known.
//
// EOF encountered before any byte of the STRT frame is read is returned as
// io.EOF verbatim — the normal "no view" stream termination.
func Decode(r io.Reader, sigStore *sigstore.Store, pathStore *pathstore.Store, filter Filter) (*view.View, error) {
	if err := readFrame(r, strtMagic, true); err != nil {
		return nil, err
	}

	scratch := view.New(sigStore, pathStore)

	var timeBuf [4]byte
	if _, err := io.ReadFull(r, timeBuf[:]); err != nil {
		return nil, bgperr.Wrap(bgperr.CorruptStream, err, "reading view time")
	}
	scratch.SetTime(binary.BigEndian.Uint32(timeBuf[:]))

	remotePeers, remotePeerToLocal, err := decodePeerSection(r, scratch, filter)
	if err != nil {
		return nil, err
	}

	remotePathToLocal, err := decodePathSection(r, pathStore)
	if err != nil {
		return nil, err
	}

	if err := decodePfxSection(r, scratch, filter, remotePeers, remotePeerToLocal, remotePathToLocal); err != nil {
		return nil, err
	}

	if err := readFrame(r, vendMagic, false); err != nil {
		return nil, err
	}

	return scratch, nil
}

func decodePeerSection(r io.Reader, scratch *view.View, filter Filter) (map[sigstore.PeerID]sigstore.Signature, map[sigstore.PeerID]sigstore.PeerID, error) {
	var countBuf [2]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, nil, bgperr.Wrap(bgperr.CorruptStream, err, "reading peer count")
	}
	count := binary.BigEndian.Uint16(countBuf[:])

	remotePeers := make(map[sigstore.PeerID]sigstore.Signature, count)
	remoteToLocal := make(map[sigstore.PeerID]sigstore.PeerID, count)

	for i := uint16(0); i < count; i++ {
		var idBuf [2]byte
		if _, err := io.ReadFull(r, idBuf[:]); err != nil {
			return nil, nil, bgperr.Wrap(bgperr.CorruptStream, err, "reading peer_id (record %d/%d)", i, count)
		}
		remoteID := sigstore.PeerID(binary.BigEndian.Uint16(idBuf[:]))

		var collectorLenBuf [1]byte
		if _, err := io.ReadFull(r, collectorLenBuf[:]); err != nil {
			return nil, nil, bgperr.Wrap(bgperr.CorruptStream, err, "reading collector_len")
		}
		collector := make([]byte, collectorLenBuf[0])
		if len(collector) > 0 {
			if _, err := io.ReadFull(r, collector); err != nil {
				return nil, nil, bgperr.Wrap(bgperr.CorruptStream, err, "reading collector name")
			}
		}

		var ipLenBuf [1]byte
		if _, err := io.ReadFull(r, ipLenBuf[:]); err != nil {
			return nil, nil, bgperr.Wrap(bgperr.CorruptStream, err, "reading ip_len")
		}
		ipLen := int(ipLenBuf[0])
		if ipLen != 4 && ipLen != 16 {
			return nil, nil, bgperr.New(bgperr.InvalidFormat, "peer %d: unknown ip_len %d", remoteID, ipLen)
		}
		ipBytes := make([]byte, ipLen)
		if _, err := io.ReadFull(r, ipBytes); err != nil {
			return nil, nil, bgperr.Wrap(bgperr.CorruptStream, err, "reading peer ip")
		}
		addr, ok := netip.AddrFromSlice(ipBytes)
		if !ok {
			return nil, nil, bgperr.New(bgperr.InvalidFormat, "peer %d: malformed ip", remoteID)
		}

		var asnBuf [4]byte
		if _, err := io.ReadFull(r, asnBuf[:]); err != nil {
			return nil, nil, bgperr.Wrap(bgperr.CorruptStream, err, "reading peer asn")
		}
		asn := binary.BigEndian.Uint32(asnBuf[:])

		sig := sigstore.Signature{Collector: string(collector), PeerIP: addr, PeerASN: asn}
		remotePeers[remoteID] = sig

		if !filter.includePeer(remoteID, sig) {
			continue
		}
		localID, err := scratch.AddPeer(sig.Collector, sig.PeerIP, sig.PeerASN)
		if err != nil {
			return nil, nil, bgperr.Wrap(bgperr.Internal, err, "adding decoded peer %d", remoteID)
		}
		remoteToLocal[remoteID] = localID
	}

	if err := readFrame(r, pendMagic, false); err != nil {
		return nil, nil, err
	}
	return remotePeers, remoteToLocal, nil
}

func decodePathSection(r io.Reader, pathStore *pathstore.Store) (map[uint32]pathstore.PathID, error) {
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, bgperr.Wrap(bgperr.CorruptStream, err, "reading path count")
	}
	count := binary.BigEndian.Uint32(countBuf[:])

	remoteToLocal := make(map[uint32]pathstore.PathID, count)

	for i := uint32(0); i < count; i++ {
		var head [8]byte
		if _, err := io.ReadFull(r, head[:]); err != nil {
			return nil, bgperr.Wrap(bgperr.CorruptStream, err, "reading path record header (record %d/%d)", i, count)
		}
		remoteIdx := binary.BigEndian.Uint32(head[0:4])
		isCore := head[4] != 0
		orderTag := head[5]
		pathLen := binary.BigEndian.Uint16(head[6:8])

		data := make([]byte, pathLen)
		if pathLen > 0 {
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, bgperr.Wrap(bgperr.CorruptStream, err, "reading path_data (remote idx %d)", remoteIdx)
			}
		}

		if orderTag != localOrderTag() {
			swapASNs(data)
		}

		localID, err := pathStore.Insert(data, isCore)
		if err != nil {
			return nil, bgperr.Wrap(bgperr.InvalidArg, err, "inserting decoded path (remote idx %d)", remoteIdx)
		}
		remoteToLocal[remoteIdx] = localID
	}

	if err := readFrame(r, pathMagic, false); err != nil {
		return nil, err
	}
	return remoteToLocal, nil
}

// swapASNs reverses the byte order of each 4-byte ASN field in a
// pathstore-encoded segment stream, without touching the kind/count header
// bytes that precede each segment's ASN list.
func swapASNs(data []byte) {
	off := 0
	for off+2 <= len(data) {
		count := int(data[off+1])
		off += 2
		for i := 0; i < count && off+4 <= len(data); i++ {
			data[off], data[off+3] = data[off+3], data[off]
			data[off+1], data[off+2] = data[off+2], data[off+1]
			off += 4
		}
	}
}

func decodePfxSection(r io.Reader, scratch *view.View, filter Filter, remotePeers map[sigstore.PeerID]sigstore.Signature, remotePeerToLocal map[sigstore.PeerID]sigstore.PeerID, remotePathToLocal map[uint32]pathstore.PathID) error {
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return bgperr.Wrap(bgperr.CorruptStream, err, "reading pfx count")
	}
	pfxCount := binary.BigEndian.Uint32(countBuf[:])

	for i := uint32(0); i < pfxCount; i++ {
		var ipLenBuf [1]byte
		if _, err := io.ReadFull(r, ipLenBuf[:]); err != nil {
			return bgperr.Wrap(bgperr.CorruptStream, err, "reading pfx ip_len (record %d/%d)", i, pfxCount)
		}
		ipLen := int(ipLenBuf[0])
		if ipLen != 4 && ipLen != 16 {
			return bgperr.New(bgperr.InvalidFormat, "unknown pfx ip_len %d", ipLen)
		}
		ipBytes := make([]byte, ipLen)
		if _, err := io.ReadFull(r, ipBytes); err != nil {
			return bgperr.Wrap(bgperr.CorruptStream, err, "reading pfx address")
		}
		var maskBuf [1]byte
		if _, err := io.ReadFull(r, maskBuf[:]); err != nil {
			return bgperr.Wrap(bgperr.CorruptStream, err, "reading pfx mask_len")
		}
		addr, ok := netip.AddrFromSlice(ipBytes)
		if !ok {
			return bgperr.New(bgperr.InvalidFormat, "malformed pfx address")
		}
		pfx := netip.PrefixFrom(addr, int(maskBuf[0]))
		if !pfx.IsValid() {
			return bgperr.New(bgperr.InvalidFormat, "invalid pfx mask_len %d", maskBuf[0])
		}
		pfx = pfx.Masked()

		var edgeCountBuf [2]byte
		if _, err := io.ReadFull(r, edgeCountBuf[:]); err != nil {
			return bgperr.Wrap(bgperr.CorruptStream, err, "reading pfx-peer count for %s", pfx)
		}
		edgeCount := binary.BigEndian.Uint16(edgeCountBuf[:])

		include := filter.includePfx(pfx)

		for j := uint16(0); j < edgeCount; j++ {
			var edgeBuf [7]byte
			if _, err := io.ReadFull(r, edgeBuf[:]); err != nil {
				return bgperr.Wrap(bgperr.CorruptStream, err, "reading pfx-peer edge %d/%d for %s", j, edgeCount, pfx)
			}
			remotePeerID := sigstore.PeerID(binary.BigEndian.Uint16(edgeBuf[0:2]))
			remotePathIdx := binary.BigEndian.Uint32(edgeBuf[2:6])
			active := edgeBuf[6] != 0

			if !include {
				continue
			}
			sig, ok := remotePeers[remotePeerID]
			if !ok {
				return bgperr.New(bgperr.CorruptStream, "pfx %s references unknown peer %d", pfx, remotePeerID)
			}
			if !filter.includePeer(remotePeerID, sig) || !filter.includePfxPeer(pfx, remotePeerID) {
				continue
			}
			localPeerID, ok := remotePeerToLocal[remotePeerID]
			if !ok {
				continue
			}
			localPathID, ok := remotePathToLocal[remotePathIdx]
			if !ok {
				return bgperr.New(bgperr.CorruptStream, "pfx %s references unknown path index %d", pfx, remotePathIdx)
			}
			if err := scratch.AddPfxPeer(pfx, localPeerID, localPathID); err != nil {
				return bgperr.Wrap(bgperr.Internal, err, "adding decoded pfx-peer %s/%d", pfx, localPeerID)
			}
			if active {
				if _, err := scratch.ActivatePfxPeer(pfx, localPeerID); err != nil {
					return bgperr.Wrap(bgperr.Internal, err, "activating decoded pfx-peer %s/%d", pfx, localPeerID)
				}
			} else if _, err := scratch.DeactivatePfxPeer(pfx, localPeerID); err != nil {
				return bgperr.Wrap(bgperr.Internal, err, "deactivating decoded pfx-peer %s/%d", pfx, localPeerID)
			}
		}
	}

	return readFrame(r, xendMagic, false)
}

// DecodeAll reads every concatenated view from r per spec §4.5/P7,
// stopping cleanly at the normal "no view" EOF.
func DecodeAll(r io.Reader, sigStore *sigstore.Store, pathStore *pathstore.Store, filter Filter) ([]*view.View, error) {
	var views []*view.View
	for {
		v, err := Decode(r, sigStore, pathStore, filter)
		if err != nil {
			if err == io.EOF {
				return views, nil
			}
			return views, err
		}
		views = append(views, v)
	}
}
