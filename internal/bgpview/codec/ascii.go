package codec

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bgpview/bgpview/internal/bgpview/pathstore"
	"github.com/bgpview/bgpview/internal/bgpview/view"
)

// WriteASCII writes v's active pfx-peers as the ASCII view dump (spec §6):
// two header lines giving the v4/v6 prefix counts, then one
// TIME|PFX|COLLECTOR|PEER_ASN|PEER_IP|AS_PATH|ORIGIN_SEG line per pfx-peer,
// in the same stable (pfx, peer) order the binary codec walks.
func WriteASCII(w io.Writer, v *view.View, filter Filter) error {
	var v4Cnt, v6Cnt int
	pc := view.NewPfxCursor(v, view.FilterActive, view.FamilyFilterBoth)
	for pc.Next() {
		pfx, _, err := pc.Get()
		if err != nil {
			return err
		}
		if !filter.includePfx(pfx) {
			continue
		}
		if view.FamilyOf(pfx) == view.FamilyIPv4 {
			v4Cnt++
		} else {
			v6Cnt++
		}
	}

	if _, err := fmt.Fprintf(w, "# View %d\n", v.GetTime()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# IPv4 Prefixes: %d\n", v4Cnt); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "# IPv6 Prefixes: %d\n", v6Cnt); err != nil {
		return err
	}

	pc = view.NewPfxCursor(v, view.FilterActive, view.FamilyFilterBoth)
	for pc.Next() {
		pfx, _, err := pc.Get()
		if err != nil {
			return err
		}
		if !filter.includePfx(pfx) {
			continue
		}

		ppc, err := pc.Peers(view.FilterActive)
		if err != nil {
			return err
		}
		for ppc.Next() {
			peerID, pp, err := ppc.Get()
			if err != nil {
				return err
			}
			sig, err := v.SigStore.Lookup(peerID)
			if err != nil {
				return err
			}
			if !filter.includePeer(peerID, sig) || !filter.includePfxPeer(pfx, peerID) {
				continue
			}

			sp, err := v.PathStore.Get(pp.PathID)
			if err != nil {
				return err
			}
			asPath, origin := formatAsPath(sp.Path)

			if _, err := fmt.Fprintf(w, "%d|%s|%s|%d|%s|%s|%s\n",
				v.GetTime(), pfx, sig.Collector, sig.PeerASN, sig.PeerIP, asPath, origin); err != nil {
				return err
			}
		}
	}
	return nil
}

// formatAsPath renders an AsPath the way a BGP looking-glass dump does: SEQ
// segments as bare space-separated ASNs, SET in braces, CONFED_SEQ in
// parens and CONFED_SET in square brackets, and returns the origin
// segment's text separately (the last segment in the path).
func formatAsPath(path pathstore.AsPath) (asPath, origin string) {
	parts := make([]string, 0, len(path.Segments))
	for _, seg := range path.Segments {
		parts = append(parts, formatSegment(seg))
	}
	asPath = strings.Join(parts, " ")
	if len(parts) > 0 {
		origin = parts[len(parts)-1]
	}
	return asPath, origin
}

func formatSegment(seg pathstore.Segment) string {
	asns := make([]string, 0, len(seg.ASNs))
	for _, asn := range seg.ASNs {
		asns = append(asns, strconv.FormatUint(uint64(asn), 10))
	}
	joined := strings.Join(asns, " ")
	switch seg.Kind {
	case pathstore.SegSet:
		return "{" + joined + "}"
	case pathstore.SegConfedSeq:
		return "(" + joined + ")"
	case pathstore.SegConfedSet:
		return "[" + joined + "]"
	default:
		return joined
	}
}
