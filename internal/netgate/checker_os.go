package netgate

import (
	"net/http"
	"strings"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// OSChecker answers Checker against the host's actual network interfaces
// and a lightweight internet reachability probe, the way the teacher's
// DiskSpaceGuard-adjacent system introspection leans on gopsutil.
type OSChecker struct {
	httpClient *http.Client
	probeURL   string
}

func NewOSChecker() *OSChecker {
	return &OSChecker{
		httpClient: &http.Client{Timeout: 3 * time.Second},
		probeURL:   "https://clients3.google.com/generate_204",
	}
}

func (c *OSChecker) HasNetwork() bool {
	stats, err := psnet.IOCounters(true)
	if err != nil {
		return true // fail open: absence of introspection must not block transfers
	}
	for _, s := range stats {
		if strings.HasPrefix(s.Name, "lo") {
			continue
		}
		if s.BytesSent > 0 || s.BytesRecv > 0 {
			return true
		}
	}
	return len(stats) > 0
}

func (c *OSChecker) HasInternet() bool {
	resp, err := c.httpClient.Head(c.probeURL)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func (c *OSChecker) OnWifi() bool {
	interfaces, err := psnet.Interfaces()
	if err != nil {
		return true // fail open; wifi-only restriction should not deadlock a task
	}
	for _, iface := range interfaces {
		name := strings.ToLower(iface.Name)
		if strings.Contains(name, "wl") || strings.Contains(name, "wifi") || strings.Contains(name, "wlan") {
			for _, flag := range iface.Flags {
				if flag == "up" {
					return true
				}
			}
		}
	}
	return false
}
