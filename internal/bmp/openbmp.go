package bmp

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"net"
)

const (
	OpenBMPHeaderSize      = 10 // v2: version(2) + collector_hash(4) + msg_len(4)
	openBMPVersionExpected = 2

	// OpenBMP v1.7 binary format (used by goBMP -bmp-raw=true)
	openBMPV17Magic      = 0x4F424D50 // "OBMP"
	openBMPV17MinHdrSize = 12         // magic(4) + ver(2) + hdr_len(2) + msg_len(4)

	// Offsets into the v1.7 header's fixed prefix, before the
	// variable-length collector admin ID.
	openBMPV17AdminIDLenOffset = 38
	openBMPV17AdminIDOffset    = 40
	openBMPV17HashLen          = 16
	openBMPV17IPLen            = 16
)

// DecodeOpenBMPFrame decodes an OpenBMP frame and extracts the BMP payload.
// Supports both the v2 format (10-byte header) and v1.7 binary format ("OBMP" magic).
func DecodeOpenBMPFrame(data []byte, maxPayloadBytes int) ([]byte, error) {
	if len(data) < OpenBMPHeaderSize {
		return nil, fmt.Errorf("openbmp: frame too short (%d bytes, need %d)", len(data), OpenBMPHeaderSize)
	}

	// Auto-detect format: v1.7 starts with "OBMP" magic (0x4F424D50).
	if binary.BigEndian.Uint32(data[0:4]) == openBMPV17Magic {
		return decodeV17(data, maxPayloadBytes)
	}

	return decodeV2(data, maxPayloadBytes)
}

// FrameLength returns the total number of bytes (header + payload) occupied
// by one OpenBMP frame at the start of data, without re-slicing the
// payload. A stream reader replaying a capture file uses this to advance
// past each frame in turn, since DecodeOpenBMPFrame itself only returns the
// payload slice.
func FrameLength(data []byte) (int, error) {
	if len(data) < OpenBMPHeaderSize {
		return 0, fmt.Errorf("openbmp: frame too short (%d bytes, need %d)", len(data), OpenBMPHeaderSize)
	}

	if binary.BigEndian.Uint32(data[0:4]) == openBMPV17Magic {
		if len(data) < openBMPV17MinHdrSize {
			return 0, fmt.Errorf("openbmp v1.7: frame too short (%d bytes, need %d)", len(data), openBMPV17MinHdrSize)
		}
		hdrLen := binary.BigEndian.Uint16(data[6:8])
		msgLen := binary.BigEndian.Uint32(data[8:12])
		return int(hdrLen) + int(msgLen), nil
	}

	msgLen := binary.BigEndian.Uint32(data[6:10])
	return OpenBMPHeaderSize + int(msgLen), nil
}

// decodeV2 decodes the simple 10-byte OpenBMP v2 header.
func decodeV2(data []byte, maxPayloadBytes int) ([]byte, error) {
	version := binary.BigEndian.Uint16(data[0:2])
	if version != openBMPVersionExpected {
		return nil, fmt.Errorf("openbmp: unexpected version %d (expected %d)", version, openBMPVersionExpected)
	}

	msgLen := binary.BigEndian.Uint32(data[6:10])

	if msgLen == 0 {
		return nil, fmt.Errorf("openbmp: msg_len is 0")
	}
	if uint64(msgLen) > uint64(math.MaxInt)-uint64(OpenBMPHeaderSize) {
		return nil, fmt.Errorf("openbmp: msg_len %d overflows addressable size", msgLen)
	}
	if maxPayloadBytes > 0 && int(msgLen) > maxPayloadBytes {
		return nil, fmt.Errorf("openbmp: msg_len %d exceeds max_payload_bytes %d", msgLen, maxPayloadBytes)
	}

	totalLen := OpenBMPHeaderSize + int(msgLen)
	if len(data) < totalLen {
		return nil, fmt.Errorf("openbmp: frame truncated (have %d, need %d)", len(data), totalLen)
	}

	return data[OpenBMPHeaderSize:totalLen], nil
}

// decodeV17 decodes the OpenBMP v1.7 binary header ("OBMP" magic).
// Header layout:
//
//	Offset 0:    Magic "OBMP" (4 bytes)
//	Offset 4:    Major version (1 byte)
//	Offset 5:    Minor version (1 byte)
//	Offset 6:    Header length (2 bytes, uint16) — total header size
//	Offset 8:    BMP message length (4 bytes, uint32) — payload size
//	Offset 12+:  Flags, type, timestamps, hashes, router info (variable)
//	Offset hdrLen: Raw BMP message bytes
func decodeV17(data []byte, maxPayloadBytes int) ([]byte, error) {
	if len(data) < openBMPV17MinHdrSize {
		return nil, fmt.Errorf("openbmp v1.7: frame too short (%d bytes, need %d)", len(data), openBMPV17MinHdrSize)
	}

	hdrLen := binary.BigEndian.Uint16(data[6:8])
	msgLen := binary.BigEndian.Uint32(data[8:12])

	if hdrLen < openBMPV17MinHdrSize {
		return nil, fmt.Errorf("openbmp v1.7: header_len %d is too small", hdrLen)
	}
	if msgLen == 0 {
		return nil, fmt.Errorf("openbmp v1.7: msg_len is 0")
	}
	if uint64(msgLen) > uint64(math.MaxInt)-uint64(hdrLen) {
		return nil, fmt.Errorf("openbmp v1.7: msg_len %d overflows addressable size", msgLen)
	}
	if maxPayloadBytes > 0 && int(msgLen) > maxPayloadBytes {
		return nil, fmt.Errorf("openbmp v1.7: msg_len %d exceeds max_payload_bytes %d", msgLen, maxPayloadBytes)
	}

	totalLen := int(hdrLen) + int(msgLen)
	if len(data) < totalLen {
		return nil, fmt.Errorf("openbmp v1.7: frame truncated (have %d, need %d)", len(data), totalLen)
	}

	return data[hdrLen:totalLen], nil
}

// RouterIPFromOpenBMPV17 extracts the Router IP from an OpenBMP v1.7 frame
// (the collector admin ID, router hash, and router IP sit between the
// fixed header prefix and the row data; the admin ID's variable length
// shifts every field after it). Returns "" for non-v1.7 frames, truncated
// data, or an all-zero IP field.
func RouterIPFromOpenBMPV17(data []byte) string {
	ipBytes, ok := openBMPV17RouterField(data, openBMPV17HashLen, openBMPV17IPLen)
	if !ok {
		return ""
	}
	return formatRouterIPField(ipBytes)
}

// RouterHashFromOpenBMPV17 extracts the router hash from an OpenBMP v1.7
// frame, the correlation key goBMP uses to tie non-Loc-RIB messages for
// the same router+peer together across message types.
func RouterHashFromOpenBMPV17(data []byte) string {
	hashBytes, ok := openBMPV17RouterField(data, 0, openBMPV17HashLen)
	if !ok {
		return ""
	}
	return hex.EncodeToString(hashBytes)
}

// openBMPV17RouterField reads a fixed-size field at skipBefore bytes past
// the variable-length collector admin ID. Used for both the router hash
// (skipBefore=0) and router IP (skipBefore=16, i.e. past the hash).
func openBMPV17RouterField(data []byte, skipBefore, fieldLen int) ([]byte, bool) {
	if len(data) < openBMPV17AdminIDOffset {
		return nil, false
	}
	if binary.BigEndian.Uint32(data[0:4]) != openBMPV17Magic {
		return nil, false
	}
	adminIDLen := int(binary.BigEndian.Uint16(data[openBMPV17AdminIDLenOffset:openBMPV17AdminIDLenOffset+2]))
	start := openBMPV17AdminIDOffset + adminIDLen + skipBefore
	end := start + fieldLen
	if len(data) < end {
		return nil, false
	}
	return data[start:end], true
}

// formatRouterIPField renders a 16-byte router IP field. goBMP stores IPv4
// addresses in the first 4 bytes with the remainder zeroed, rather than as
// a standard ::ffff:-mapped IPv6 address, so that convention is checked
// explicitly before falling back to full 16-byte IPv6 formatting.
func formatRouterIPField(ipBytes []byte) string {
	if isZero(ipBytes[4:16]) {
		if isZero(ipBytes[0:4]) {
			return ""
		}
		return net.IP(ipBytes[0:4]).String()
	}
	return net.IP(ipBytes).String()
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
