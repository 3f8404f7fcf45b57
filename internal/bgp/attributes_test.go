package bgp

import "testing"

func TestParseUpdate_ASPathConfedSegments(t *testing.T) {
	// AS_PATH: AS_CONFED_SEQUENCE [64496, 64497], then AS_CONFED_SET [64498, 64499]
	asPathData := []byte{
		ASPathSegmentConfedSeq, 2,
		0, 0, 0xFB, 0xF0, // AS64496
		0, 0, 0xFB, 0xF1, // AS64497
		ASPathSegmentConfedSet, 2,
		0, 0, 0xFB, 0xF2, // AS64498
		0, 0, 0xFB, 0xF3, // AS64499
	}
	asPathAttr := buildPathAttr(0x40, AttrTypeASPath, asPathData)

	nlri := []byte{24, 10, 0, 0}
	originAttr := buildPathAttr(0x40, AttrTypeOrigin, []byte{0})
	pathAttrs := append(originAttr, asPathAttr...)

	msg := buildBGPUpdate(nil, pathAttrs, nlri)

	events, err := ParseUpdate(msg, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	want := "(64496,64497) [64498,64499]"
	if events[0].ASPath != want {
		t.Errorf("expected AS_PATH %q, got %q", want, events[0].ASPath)
	}
}

func TestParseUpdate_ASPathMixedSequenceAndSet(t *testing.T) {
	asPathData := []byte{
		ASPathSegmentSequence, 1,
		0, 0, 0xFB, 0xF0, // AS64496
	}
	setData := []byte{
		ASPathSegmentSet, 2,
		0, 0, 0xFB, 0xF1, // AS64497
		0, 0, 0xFB, 0xF2, // AS64498
	}
	asPathData = append(asPathData, setData...)
	asPathAttr := buildPathAttr(0x40, AttrTypeASPath, asPathData)

	nlri := []byte{24, 10, 0, 0}
	originAttr := buildPathAttr(0x40, AttrTypeOrigin, []byte{0})
	pathAttrs := append(originAttr, asPathAttr...)

	msg := buildBGPUpdate(nil, pathAttrs, nlri)

	events, err := ParseUpdate(msg, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	want := "64496 {64497,64498}"
	if events[0].ASPath != want {
		t.Errorf("expected AS_PATH %q, got %q", want, events[0].ASPath)
	}
}

func TestOriginASN(t *testing.T) {
	cases := []struct {
		in   string
		want *int
	}{
		{"64496 64497 64498", intPtr(64498)},
		{"", nil},
		{"64496 {64497,64498}", nil},
	}
	for _, c := range cases {
		got := OriginASN(c.in)
		if (got == nil) != (c.want == nil) {
			t.Errorf("OriginASN(%q) = %v, want %v", c.in, got, c.want)
			continue
		}
		if got != nil && *got != *c.want {
			t.Errorf("OriginASN(%q) = %d, want %d", c.in, *got, *c.want)
		}
	}
}

func intPtr(v int) *int { return &v }
