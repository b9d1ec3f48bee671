package netgate

import "testing"

type fakeChecker struct {
	network, internet, wifi bool
}

func (f fakeChecker) HasNetwork() bool  { return f.network }
func (f fakeChecker) HasInternet() bool { return f.internet }
func (f fakeChecker) OnWifi() bool      { return f.wifi }

func TestUsableAllConditionsMet(t *testing.T) {
	g := New(fakeChecker{network: true, internet: true, wifi: true})
	ok, cause := g.Usable(false)
	if !ok || cause != CauseNone {
		t.Fatalf("expected usable, got ok=%v cause=%v", ok, cause)
	}
}

func TestUsableNoNetwork(t *testing.T) {
	g := New(fakeChecker{network: false})
	ok, cause := g.Usable(false)
	if ok || cause != CauseNoNetwork {
		t.Fatalf("expected CauseNoNetwork, got ok=%v cause=%v", ok, cause)
	}
}

func TestUsableWifiRequired(t *testing.T) {
	g := New(fakeChecker{network: true, internet: true, wifi: false})
	ok, cause := g.Usable(true)
	if ok || cause != CauseWifiRequired {
		t.Fatalf("expected CauseWifiRequired, got ok=%v cause=%v", ok, cause)
	}
}

func TestUsableNoInternet(t *testing.T) {
	g := New(fakeChecker{network: true, internet: false, wifi: true})
	ok, cause := g.Usable(false)
	if ok || cause != CauseNoInternet {
		t.Fatalf("expected CauseNoInternet, got ok=%v cause=%v", ok, cause)
	}
}
