package view

import (
	"fmt"
	"net/netip"
)

// Pfx is the spec's Prefix type: {address, mask_len}. Equality/hashing are
// by value (spec §3). netip.Prefix already has by-value equality and is
// comparable, so it is used directly as a map key; callers are expected to
// pass the masked form (ParsePfx does this) so that two callers naming the
// same network always produce the same key.
type Pfx = netip.Prefix

// Family identifies an address family, used by pfx-count bookkeeping (spec
// §3 PeerInfo.pfx_count_v4/v6) and by the view iterator's family filter
// (spec §4.4).
type Family uint8

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
)

func FamilyOf(p Pfx) Family {
	if p.Addr().Is4() {
		return FamilyIPv4
	}
	return FamilyIPv6
}

// ParsePfx parses a CIDR string into a masked Pfx, failing with InvalidArg
// semantics surfaced by the caller (the view's mutators wrap this).
func ParsePfx(s string) (Pfx, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return Pfx{}, fmt.Errorf("parsing prefix %q: %w", s, err)
	}
	return p.Masked(), nil
}

// comparePfx orders prefixes first by address family, then by address
// bytes, then by mask length — the total order backing the view's ordered
// btree index (SPEC_FULL.md §10.2).
func comparePfx(a, b Pfx) int {
	af, bf := FamilyOf(a), FamilyOf(b)
	if af != bf {
		if af < bf {
			return -1
		}
		return 1
	}
	aBytes, bBytes := a.Addr().As16(), b.Addr().As16()
	for i := range aBytes {
		if aBytes[i] != bBytes[i] {
			if aBytes[i] < bBytes[i] {
				return -1
			}
			return 1
		}
	}
	if a.Bits() != b.Bits() {
		if a.Bits() < b.Bits() {
			return -1
		}
		return 1
	}
	return 0
}
