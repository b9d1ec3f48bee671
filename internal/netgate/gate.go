// Package netgate implements NetworkGate: the usable()/waiting-reason
// predicate that tells a TaskEngine whether it may keep transferring,
// behind an injectable Checker so tests never touch the real network
// stack.
package netgate

// Cause identifies why usable() returned false.
type Cause string

const (
	CauseNone           Cause = ""
	CauseNoNetwork      Cause = "NO_NETWORK"
	CauseWifiRequired   Cause = "WIFI_REQUIRED"
	CauseNoInternet     Cause = "NO_INTERNET"
)

// UserMessages maps each waiting cause to its surfaced status message.
var UserMessages = map[Cause]string{
	CauseNoNetwork:    "Waiting for network connection",
	CauseWifiRequired: "Waiting for Wi-Fi connection",
	CauseNoInternet:   "Waiting for internet connection",
}

// Checker reports the host's current connectivity state. The production
// implementation (checker_os.go) asks gopsutil for interface state; tests
// substitute a fixed-answer fake.
type Checker interface {
	HasNetwork() bool
	HasInternet() bool
	OnWifi() bool
}

// Gate evaluates usability against a Checker and the task's
// downloadWifiOnly setting.
type Gate struct {
	checker Checker
}

func New(checker Checker) *Gate {
	return &Gate{checker: checker}
}

// Usable reports whether transfer may proceed, and if not, why.
func (g *Gate) Usable(wifiOnly bool) (bool, Cause) {
	if !g.checker.HasNetwork() {
		return false, CauseNoNetwork
	}
	if wifiOnly && !g.checker.OnWifi() {
		return false, CauseWifiRequired
	}
	if !g.checker.HasInternet() {
		return false, CauseNoInternet
	}
	return true, CauseNone
}
