package ingest

import (
	"encoding/binary"
	"testing"

	"go.uber.org/zap"

	"github.com/bgpview/bgpview/internal/bgpview/engine"
	"github.com/bgpview/bgpview/internal/bgpview/pathstore"
	"github.com/bgpview/bgpview/internal/bgpview/sigstore"
	"github.com/bgpview/bgpview/internal/bgpview/view"
	"github.com/bgpview/bgpview/internal/bmp"
)

// buildPerPeerHeader builds a 42-byte BMP per-peer header with the peer
// address, ASN, and timestamp at the offsets RouterIDFromPeerHeader and
// friends expect (peer address at 10, AS at 26, timestamp at 34, after the
// one-octet peer_flags and the 8-byte distinguisher).
func buildPerPeerHeader(peerType uint8, peerIPv4 [4]byte, asn uint32, ts uint32) []byte {
	hdr := make([]byte, 42)
	hdr[0] = peerType
	// peer address: IPv4-mapped IPv6 at offset 10..26
	copy(hdr[10:26], []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff, peerIPv4[0], peerIPv4[1], peerIPv4[2], peerIPv4[3]})
	binary.BigEndian.PutUint32(hdr[26:30], asn)
	binary.BigEndian.PutUint32(hdr[34:38], ts)
	return hdr
}

func buildMinimalBGPUpdate() []byte {
	// marker(16) + length(2) + type(1); withdrawn_len(2)=0; path_attr_len(2)=0; no NLRI.
	msg := make([]byte, 19+2+2)
	for i := 0; i < 16; i++ {
		msg[i] = 0xff
	}
	binary.BigEndian.PutUint16(msg[16:18], uint16(len(msg)))
	msg[18] = 2 // UPDATE
	return msg
}

func buildBMPMessage(msgType uint8, peerHeader, payload []byte) []byte {
	body := append(append([]byte{}, peerHeader...), payload...)
	totalLen := bmp.CommonHeaderSize + len(body)
	msg := make([]byte, totalLen)
	msg[0] = bmp.BMPVersion
	binary.BigEndian.PutUint32(msg[1:5], uint32(totalLen))
	msg[5] = msgType
	copy(msg[bmp.CommonHeaderSize:], body)
	return msg
}

func wrapOpenBMPV2(bmpMsg []byte) []byte {
	frame := make([]byte, bmp.OpenBMPHeaderSize+len(bmpMsg))
	binary.BigEndian.PutUint16(frame[0:2], 2)
	binary.BigEndian.PutUint32(frame[6:10], uint32(len(bmpMsg)))
	copy(frame[bmp.OpenBMPHeaderSize:], bmpMsg)
	return frame
}

func newTestEngine() *engine.Engine {
	v := view.New(sigstore.New(), pathstore.New())
	return engine.New(v)
}

func TestReplayer_PeerUpThenRouteMonitoring(t *testing.T) {
	eng := newTestEngine()
	r := NewReplayer(eng, "test-collector", zap.NewNop())

	peerHeader := buildPerPeerHeader(bmp.PeerTypeGlobal, [4]byte{192, 0, 2, 1}, 64500, 1700000000)
	peerUp := buildBMPMessage(bmp.MsgTypePeerUp, peerHeader, make([]byte, 20))

	rmHeader := buildPerPeerHeader(bmp.PeerTypeGlobal, [4]byte{192, 0, 2, 1}, 64500, 1700000100)
	update := buildMinimalBGPUpdate()
	routeMon := buildBMPMessage(bmp.MsgTypeRouteMonitoring, rmHeader, update)

	var data []byte
	data = append(data, wrapOpenBMPV2(peerUp)...)
	data = append(data, wrapOpenBMPV2(routeMon)...)

	if err := r.Feed(data); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	frames, messages, skipped := r.Stats()
	if frames != 2 {
		t.Errorf("frames = %d, want 2", frames)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if messages != 1 {
		t.Errorf("messages = %d, want 1 (peer-up state transition; empty update carries no routes)", messages)
	}
}

func TestReplayer_SkipsUndecodableFrame(t *testing.T) {
	eng := newTestEngine()
	r := NewReplayer(eng, "test-collector", zap.NewNop())

	// A well-formed v2 frame header declaring a msg_len of 0, which decodeV2 rejects.
	frame := make([]byte, bmp.OpenBMPHeaderSize)
	binary.BigEndian.PutUint16(frame[0:2], 2)
	binary.BigEndian.PutUint32(frame[6:10], 0)

	if err := r.Feed(frame); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	_, _, skipped := r.Stats()
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
}
