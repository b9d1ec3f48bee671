package network

import (
	"sync"
	"time"
)

// CongestionController is the CongestionAdvisor: an AIMD (Additive
// Increase, Multiplicative Decrease) estimator kept per destination host.
// TaskEngine asks it for the ideal concurrency, within [1, maxWorkers],
// once when a direct-HTTP transfer starts and uses that as the transfer's
// segment count, then reports each segment's outcome as it finishes; no
// worker is added or shed while a transfer runs.
type CongestionController struct {
	mu         sync.RWMutex
	hosts      map[string]*HostStats
	minWorkers int
	maxWorkers int
}

// HostStats tracks per-host network statistics for congestion control.
type HostStats struct {
	LastRTT      time.Duration
	SmoothedRTT  time.Duration // SRTT
	Concurrency  int
	LastUpdate   time.Time
	SuccessCount int
	ErrorCount   int
}

// NewCongestionController creates a controller with min/max worker bounds.
func NewCongestionController(min, max int) *CongestionController {
	return &CongestionController{
		hosts:      make(map[string]*HostStats),
		minWorkers: min,
		maxWorkers: max,
	}
}

// RecordOutcome updates stats for a host based on a completed segment's
// chunk transfer: its round-trip latency and whether it errored.
func (cc *CongestionController) RecordOutcome(host string, latency time.Duration, err error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	stats, ok := cc.hosts[host]
	if !ok {
		stats = &HostStats{
			Concurrency: cc.minWorkers,
			SmoothedRTT: latency,
		}
		cc.hosts[host] = stats
	}

	// Exponential moving average for RTT.
	const alpha = 0.125
	stats.SmoothedRTT = time.Duration((1-alpha)*float64(stats.SmoothedRTT) + alpha*float64(latency))
	stats.LastRTT = latency
	stats.LastUpdate = time.Now()

	if err != nil {
		stats.ErrorCount++
	} else {
		stats.SuccessCount++
	}
}

// GetIdealConcurrency returns the target segment-worker count for host
// using AIMD logic: a multiplicative decrease on any error since the last
// call, otherwise an additive increase once enough successful segments
// have completed to trust the current level.
func (cc *CongestionController) GetIdealConcurrency(host string) int {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	stats, ok := cc.hosts[host]
	if !ok {
		return cc.minWorkers // slow start
	}

	if stats.ErrorCount > 0 {
		stats.Concurrency = maxInt(1, stats.Concurrency/2)
		stats.ErrorCount = 0 // reset after reacting
		return stats.Concurrency
	}

	if stats.SuccessCount > stats.Concurrency {
		if stats.Concurrency < cc.maxWorkers {
			stats.Concurrency++
		}
		stats.SuccessCount = 0 // reset for next window
	}

	return stats.Concurrency
}

// GetHostStats returns a copy of stats for a host (for testing/monitoring).
func (cc *CongestionController) GetHostStats(host string) *HostStats {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	stats, ok := cc.hosts[host]
	if !ok {
		return nil
	}
	copy := *stats
	return &copy
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
