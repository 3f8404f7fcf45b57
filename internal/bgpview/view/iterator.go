package view

import (
	"github.com/bgpview/bgpview/internal/bgpview/bgperr"
	"github.com/bgpview/bgpview/internal/bgpview/sigstore"
)

// ActiveFilter selects which records a cursor visits (spec §4.4).
type ActiveFilter uint8

const (
	FilterActive ActiveFilter = iota
	FilterInactive
	FilterAll
)

// FamilyFilter selects which address families a PfxCursor visits.
type FamilyFilter uint8

const (
	FamilyFilterBoth FamilyFilter = iota
	FamilyFilterV4
	FamilyFilterV6
)

func (f ActiveFilter) match(active bool) bool {
	switch f {
	case FilterActive:
		return active
	case FilterInactive:
		return !active
	default:
		return true
	}
}

func (f FamilyFilter) match(fam Family) bool {
	switch f {
	case FamilyFilterV4:
		return fam == FamilyIPv4
	case FamilyFilterV6:
		return fam == FamilyIPv6
	default:
		return true
	}
}

// errInvalidated is returned by a cursor's Get/Peers methods (and Next
// returns false) once the view it was built against has been mutated (spec §9: "a cursor must not
// observe a torn state; generation invalidation is sufficient").
var errInvalidated = bgperr.New(bgperr.Internal, "iterator invalidated by a concurrent view mutation")

// PeerCursor walks a View's peers in stable (sorted-by-PeerID) order.
type PeerCursor struct {
	v      *View
	gen    uint64
	filter ActiveFilter
	ids    []sigstore.PeerID
	pos    int
}

// NewPeerCursor returns a cursor positioned before the first matching peer.
func NewPeerCursor(v *View, filter ActiveFilter) *PeerCursor {
	c := &PeerCursor{v: v, gen: v.gen, filter: filter, pos: -1}
	v.peerOrder.Ascend(func(id sigstore.PeerID) bool {
		if pe := v.peers[id]; pe != nil && filter.match(pe.info.Active) {
			c.ids = append(c.ids, id)
		}
		return true
	})
	return c
}

// Next advances the cursor. It returns false once exhausted or if the
// underlying view was mutated since the cursor was created.
func (c *PeerCursor) Next() bool {
	if c.v.gen != c.gen {
		return false
	}
	c.pos++
	return c.pos < len(c.ids)
}

// Get returns the current peer's ID and info.
func (c *PeerCursor) Get() (sigstore.PeerID, PeerInfo, error) {
	if c.v.gen != c.gen {
		return 0, PeerInfo{}, errInvalidated
	}
	if c.pos < 0 || c.pos >= len(c.ids) {
		return 0, PeerInfo{}, bgperr.New(bgperr.Internal, "cursor Get called out of range")
	}
	id := c.ids[c.pos]
	pe := c.v.peers[id]
	if pe == nil {
		return 0, PeerInfo{}, errInvalidated
	}
	return id, pe.info, nil
}

// PfxCursor walks a View's prefixes in (family, address, mask) order.
type PfxCursor struct {
	v      *View
	gen    uint64
	filter ActiveFilter
	famF   FamilyFilter
	pfxs   []Pfx
	pos    int
}

// NewPfxCursor returns a cursor positioned before the first matching pfx.
func NewPfxCursor(v *View, filter ActiveFilter, famF FamilyFilter) *PfxCursor {
	c := &PfxCursor{v: v, gen: v.gen, filter: filter, famF: famF, pos: -1}
	v.pfxOrder.Ascend(func(pfx Pfx) bool {
		entry := v.pfxs[pfx]
		if entry != nil && filter.match(entry.active) && famF.match(FamilyOf(pfx)) {
			c.pfxs = append(c.pfxs, pfx)
		}
		return true
	})
	return c
}

func (c *PfxCursor) Next() bool {
	if c.v.gen != c.gen {
		return false
	}
	c.pos++
	return c.pos < len(c.pfxs)
}

// Get returns the current prefix and whether it is active.
func (c *PfxCursor) Get() (Pfx, bool, error) {
	if c.v.gen != c.gen {
		return Pfx{}, false, errInvalidated
	}
	if c.pos < 0 || c.pos >= len(c.pfxs) {
		return Pfx{}, false, bgperr.New(bgperr.Internal, "cursor Get called out of range")
	}
	pfx := c.pfxs[c.pos]
	entry := c.v.pfxs[pfx]
	if entry == nil {
		return Pfx{}, false, errInvalidated
	}
	return pfx, entry.active, nil
}

// Peers opens a PfxPeerCursor over the current prefix's edges.
func (c *PfxCursor) Peers(filter ActiveFilter) (*PfxPeerCursor, error) {
	if c.v.gen != c.gen {
		return nil, errInvalidated
	}
	if c.pos < 0 || c.pos >= len(c.pfxs) {
		return nil, bgperr.New(bgperr.Internal, "cursor Peers called out of range")
	}
	return newPfxPeerCursor(c.v, c.pfxs[c.pos], filter), nil
}

// PfxPeerCursor walks the pfx-peer edges of a single prefix, in
// stable (sorted-by-PeerID) order.
type PfxPeerCursor struct {
	v      *View
	gen    uint64
	pfx    Pfx
	filter ActiveFilter
	ids    []sigstore.PeerID
	pos    int
}

func newPfxPeerCursor(v *View, pfx Pfx, filter ActiveFilter) *PfxPeerCursor {
	c := &PfxPeerCursor{v: v, gen: v.gen, pfx: pfx, filter: filter, pos: -1}
	entry := v.pfxs[pfx]
	if entry == nil {
		return c
	}
	entry.peerOrder.Ascend(func(id sigstore.PeerID) bool {
		if pp := entry.peers[id]; pp != nil && filter.match(pp.Active) {
			c.ids = append(c.ids, id)
		}
		return true
	})
	return c
}

// NewPfxPeerCursor opens a cursor over pfx's edges directly, without first
// going through a PfxCursor.
func NewPfxPeerCursor(v *View, pfx Pfx, filter ActiveFilter) (*PfxPeerCursor, error) {
	if _, ok := v.pfxs[pfx]; !ok {
		return nil, bgperr.New(bgperr.NotFound, "pfx %s", pfx)
	}
	return newPfxPeerCursor(v, pfx, filter), nil
}

func (c *PfxPeerCursor) Next() bool {
	if c.v.gen != c.gen {
		return false
	}
	c.pos++
	return c.pos < len(c.ids)
}

// Get returns the current edge's peer ID and info.
func (c *PfxPeerCursor) Get() (sigstore.PeerID, PfxPeerInfo, error) {
	if c.v.gen != c.gen {
		return 0, PfxPeerInfo{}, errInvalidated
	}
	if c.pos < 0 || c.pos >= len(c.ids) {
		return 0, PfxPeerInfo{}, bgperr.New(bgperr.Internal, "cursor Get called out of range")
	}
	id := c.ids[c.pos]
	entry := c.v.pfxs[c.pfx]
	if entry == nil {
		return 0, PfxPeerInfo{}, errInvalidated
	}
	pp := entry.peers[id]
	if pp == nil {
		return 0, PfxPeerInfo{}, errInvalidated
	}
	return id, *pp, nil
}
