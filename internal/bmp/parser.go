package bmp

import (
	"encoding/binary"
	"fmt"
	"net"
)

// ParseAll parses a sequence of concatenated BMP messages from raw bytes,
// as goBMP delivers them: one Kafka record (or one capture-file read) may
// bundle several messages back to back. Each result's Offset field records
// where it started within data. A message that fails to parse (e.g. a bad
// version byte) is skipped without aborting the scan, since its declared
// msg_length is still readable and lets the scan find the next frame;
// trailing bytes too short to hold another common header are dropped
// silently. Returns an error only if not a single message could be parsed.
func ParseAll(data []byte) ([]*ParsedBMP, error) {
	var results []*ParsedBMP
	offset := 0

	for offset < len(data) {
		remaining := data[offset:]
		if len(remaining) < CommonHeaderSize {
			break
		}

		msgLength := binary.BigEndian.Uint32(remaining[1:5])
		if msgLength < uint32(CommonHeaderSize) || int(msgLength) > len(remaining) {
			break
		}

		parsed, err := Parse(remaining[:msgLength])
		if err != nil {
			offset += int(msgLength)
			continue
		}

		parsed.Offset = offset
		results = append(results, parsed)
		offset += int(msgLength)
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("bmp: no valid messages parsed from %d bytes", len(data))
	}
	return results, nil
}

// Parse parses a complete BMP message from raw bytes.
func Parse(data []byte) (*ParsedBMP, error) {
	if len(data) < CommonHeaderSize {
		return nil, fmt.Errorf("bmp: message too short for common header (%d bytes)", len(data))
	}

	version := data[0]
	if version != BMPVersion {
		return nil, fmt.Errorf("bmp: unsupported version %d (expected %d)", version, BMPVersion)
	}

	msgLength := binary.BigEndian.Uint32(data[1:5])
	msgType := data[5]

	if msgLength < uint32(CommonHeaderSize) {
		return nil, fmt.Errorf("bmp: declared msg_length %d smaller than common header size %d", msgLength, CommonHeaderSize)
	}
	if int(msgLength) > len(data) {
		return nil, fmt.Errorf("bmp: declared msg_length %d exceeds available data %d", msgLength, len(data))
	}

	result := &ParsedBMP{
		MsgType:   msgType,
		TableName: "UNKNOWN",
	}

	switch msgType {
	case MsgTypeRouteMonitoring:
		return parseRouteMonitoring(data[CommonHeaderSize:msgLength], result)
	case MsgTypePeerUp:
		return parsePeerUp(data[CommonHeaderSize:msgLength], result)
	case MsgTypePeerDown:
		return parsePeerDown(data[CommonHeaderSize:msgLength], result)
	case MsgTypeTermination:
		result.MsgType = MsgTypeTermination
		return result, nil
	default:
		// Skip other message types.
		return result, nil
	}
}

func parsePeerUp(data []byte, result *ParsedBMP) (*ParsedBMP, error) {
	if len(data) < 42 {
		return nil, fmt.Errorf("bmp: peer up too short for per-peer header (%d bytes)", len(data))
	}

	result.PeerType = data[0]
	result.IsLocRIB = result.PeerType == PeerTypeLocRIB
	result.PeerHeader = data[:42]

	return result, nil
}

func parseRouteMonitoring(data []byte, result *ParsedBMP) (*ParsedBMP, error) {
	if len(data) < 42 {
		return nil, fmt.Errorf("bmp: route monitoring too short for per-peer header (%d bytes)", len(data))
	}

	result.PeerType = data[0]
	result.PeerFlags = uint16(data[1])
	result.IsLocRIB = result.PeerType == PeerTypeLocRIB
	result.HasAddPath = (result.PeerFlags & PeerFlagAddPath) != 0
	result.PeerHeader = data[:42]

	// After per-peer header (42 bytes), the BGP message follows.
	// But for Loc-RIB, we need to extract the BGP UPDATE first, then parse TLVs after.
	bgpStart := 42

	if bgpStart >= len(data) {
		return nil, fmt.Errorf("bmp: no data after per-peer header")
	}

	// Parse the BGP message to find its end.
	bgpData := data[bgpStart:]

	if result.IsLocRIB {
		// For Loc-RIB (RFC 9069), the structure is:
		// per-peer header (42) + BGP UPDATE + TLVs
		// We need to parse the BGP message header to find its length,
		// then parse TLVs after.
		bgpMsgLen, err := bgpMessageLength(bgpData)
		if err != nil {
			// If we can't parse BGP header, treat all remaining as BGP data.
			result.BGPData = bgpData
			return result, nil
		}

		if bgpMsgLen > len(bgpData) {
			result.BGPData = bgpData
			return result, nil
		}

		result.BGPData = bgpData[:bgpMsgLen]

		// Parse TLVs after BGP message for table name.
		tlvData := bgpData[bgpMsgLen:]
		parseTLVs(tlvData, result)
	} else {
		result.BGPData = bgpData
	}

	return result, nil
}

func parsePeerDown(data []byte, result *ParsedBMP) (*ParsedBMP, error) {
	if len(data) < 42 {
		return nil, fmt.Errorf("bmp: peer down too short for per-peer header (%d bytes)", len(data))
	}

	result.PeerType = data[0]
	result.IsLocRIB = result.PeerType == PeerTypeLocRIB
	result.PeerHeader = data[:42]

	if len(data) > 42 {
		result.PeerDownReason = data[42]
		if result.IsLocRIB {
			parseTLVs(data[43:], result)
		}
	}

	return result, nil
}

// bgpMessageLength reads the length field from a BGP message header.
// BGP header: marker(16) + length(2) + type(1) = 19 bytes minimum.
func bgpMessageLength(data []byte) (int, error) {
	if len(data) < 19 {
		return 0, fmt.Errorf("bmp: bgp message too short (%d bytes)", len(data))
	}
	// Length is at offset 16-17 (after the 16-byte marker).
	length := int(binary.BigEndian.Uint16(data[16:18]))
	if length < 19 {
		return 0, fmt.Errorf("bmp: invalid bgp message length %d", length)
	}
	return length, nil
}

// parseTLVs extracts Table Name and other TLVs from data following the BGP message.
func parseTLVs(data []byte, result *ParsedBMP) {
	offset := 0
	for offset+4 <= len(data) {
		tlvType := binary.BigEndian.Uint16(data[offset : offset+2])
		tlvLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4

		if offset+tlvLen > len(data) {
			break
		}

		if tlvType == TLVTypeTableName && tlvLen > 0 {
			result.TableName = string(data[offset : offset+tlvLen])
		}

		offset += tlvLen
	}
}

// RouterIDFromPeerHeader extracts the peer address from a per-peer header for
// logging. When the Peer Address is all zeros (as in a Loc-RIB header), it
// falls back to the Peer BGP ID; it returns "" when both are zero.
func RouterIDFromPeerHeader(data []byte) string {
	if len(data) < 42 {
		return ""
	}
	// Peer address is at offset 1+1+8 = 10, 16 bytes.
	addr := data[10:26]
	if isZero(addr) {
		if isZero(data[30:34]) {
			return ""
		}
		return net.IP(data[30:34]).String()
	}
	// IPv4 peers carry 12 zero bytes before the 4 address bytes.
	if isZero(addr[0:12]) {
		return net.IP(addr[12:16]).String()
	}
	ip := net.IP(addr)
	// Check if it's an IPv4-mapped IPv6 address.
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}

// PeerASNFromPeerHeader extracts the peer AS number from a per-peer header,
// following the same offset convention as RouterIDFromPeerHeader (peer
// address at 10, so the 4-byte AS field follows at 26).
func PeerASNFromPeerHeader(data []byte) uint32 {
	if len(data) < 42 {
		return 0
	}
	return binary.BigEndian.Uint32(data[26:30])
}

// TimestampFromPeerHeader extracts the per-peer header's seconds-since-epoch
// timestamp (offset 34, after the AS and BGP ID fields).
func TimestampFromPeerHeader(data []byte) uint32 {
	if len(data) < 42 {
		return 0
	}
	return binary.BigEndian.Uint32(data[34:38])
}
