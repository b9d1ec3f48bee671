// Package network implements the engine-wide BandwidthGovernor and the
// per-host CongestionAdvisor used by the direct-HTTP transfer in
// internal/taskengine: segment workers wait on the governor before every
// chunk read, and the advisor sizes the segment split when a transfer
// starts and hears each segment's outcome when it finishes.
package network

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// BandwidthManager is the BandwidthGovernor: a single token-bucket
// limiter shared across every concurrently running TaskEngine's segment
// workers, rather than a per-task budget. It has zero overhead when no
// limit is configured.
type BandwidthManager struct {
	globalLimiter *rate.Limiter
	limitEnabled  atomic.Bool
}

// NewBandwidthManager creates a manager with no limit enabled.
func NewBandwidthManager() *BandwidthManager {
	return &BandwidthManager{
		globalLimiter: rate.NewLimiter(rate.Inf, 0),
	}
}

// SetLimit updates the shared limit in bytes per second; 0 or negative
// disables it. TaskEngine calls this at the start of each direct-HTTP
// transfer with the record's current globalSettings.downloadMaxNetworkSpeed,
// so the bucket always reflects the most recently started task's view of
// that setting even though the limiter itself is shared.
func (bm *BandwidthManager) SetLimit(bytesPerSec int64) {
	if bytesPerSec <= 0 {
		bm.limitEnabled.Store(false)
		bm.globalLimiter.SetLimit(rate.Inf)
		return
	}
	bm.limitEnabled.Store(true)
	bm.globalLimiter.SetLimit(rate.Limit(bytesPerSec))
	bm.globalLimiter.SetBurst(int(bytesPerSec)) // allow a 1s burst
}

// Wait blocks until n bytes may be drawn from the shared budget. taskID
// identifies the calling segment's task for future per-task accounting;
// the current throttle is engine-wide and does not yet use it.
func (bm *BandwidthManager) Wait(ctx context.Context, taskID string, n int) error {
	if !bm.limitEnabled.Load() {
		return nil
	}
	return bm.globalLimiter.WaitN(ctx, n)
}
