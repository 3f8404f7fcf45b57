package kafka

import "testing"

func TestTopicNames(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{PfxsTopic("bgpview", "rrc00"), "bgpview.rrc00.pfxs"},
		{PeersTopic("bgpview", "rrc00"), "bgpview.rrc00.peers"},
		{MetaTopic("bgpview", "rrc00"), "bgpview.rrc00.meta"},
		{MembersTopic("bgpview"), "bgpview.members"},
		{GlobalMetaTopic("bgpview", ""), "bgpview.globalmeta"},
		{GlobalMetaTopic("bgpview", "ris"), "bgpview.globalmeta.ris"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}
