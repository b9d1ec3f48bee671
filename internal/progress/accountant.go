// Package progress recomputes a Record's progress, speed, and ETA fields
// on every tick — the same bookkeeping the teacher's analytics layer does
// for its speed gauges, but driven per-task instead of engine-wide.
package progress

import (
	"fmt"
	"time"

	"aio-download-engine/internal/record"
)

// speedEpsilon avoids a divide-by-zero when computing remaining time at
// zero instantaneous speed.
const speedEpsilon = 1

// Accountant tracks the previous tick's cumulative byte count per record
// id so it can derive an instantaneous speed from the delta.
type Accountant struct {
	prevBytes map[string]int64
	prevTick  map[string]time.Time
}

func New() *Accountant {
	return &Accountant{
		prevBytes: make(map[string]int64),
		prevTick:  make(map[string]time.Time),
	}
}

// Tick applies one accounting step to r. tickPeriod is the nominal period
// between calls (used for timeSpent bookkeeping even if the wall-clock
// delta drifts slightly); segmentBytes is the current total downloaded
// bytes across every active segment or extractor staging file.
func (a *Accountant) Tick(r *record.Record, tickPeriod time.Duration, segmentBytes int64) {
	now := time.Now()

	if !r.IsWaitingForNetwork {
		r.TimeSpentInMilliSec += tickPeriod.Milliseconds()
	}

	r.DownloadedByte = segmentBytes
	if r.IsUnknownFileSize {
		r.FileSize = r.DownloadedByte
	}

	if r.FileSize > 0 {
		r.ProgressPercentage = (float64(r.DownloadedByte) / float64(r.FileSize)) * 100
		if r.ProgressPercentage > 100 {
			r.ProgressPercentage = 100
		}
	}

	a.recomputeSpeed(r, now)

	if r.FileSize > 0 {
		speed := r.RealtimeSpeed
		if speed < speedEpsilon {
			speed = speedEpsilon
		}
		remaining := r.FileSize - r.DownloadedByte
		if remaining < 0 {
			remaining = 0
		}
		r.RemainingTimeInSec = remaining / speed
	}

	a.updateFormattedMirrors(r)
	r.Touch()
}

func (a *Accountant) recomputeSpeed(r *record.Record, now time.Time) {
	prevBytes, hadPrev := a.prevBytes[r.ID]
	prevTick, hadTick := a.prevTick[r.ID]

	if hadPrev && hadTick {
		elapsed := now.Sub(prevTick).Seconds()
		if elapsed > 0 {
			delta := r.DownloadedByte - prevBytes
			if delta < 0 {
				delta = 0
			}
			instantaneous := int64(float64(delta) / elapsed)
			// EWMA with a 0.3 weight on the new sample, smoothing spikes
			// from bursty segment completion the way a live speed gauge must.
			if r.RealtimeSpeed == 0 {
				r.RealtimeSpeed = instantaneous
			} else {
				r.RealtimeSpeed = int64(0.7*float64(r.RealtimeSpeed) + 0.3*float64(instantaneous))
			}
		}
	}

	a.prevBytes[r.ID] = r.DownloadedByte
	a.prevTick[r.ID] = now

	if r.RealtimeSpeed > r.MaxSpeed {
		r.MaxSpeed = r.RealtimeSpeed
	}

	if elapsedMs := r.TimeSpentInMilliSec; elapsedMs > 0 {
		r.AverageSpeed = r.DownloadedByte * 1000 / elapsedMs
	}
}

func (a *Accountant) updateFormattedMirrors(r *record.Record) {
	r.FormattedDownloadedByte = formatBytes(r.DownloadedByte)
	r.FormattedFileSize = formatBytes(r.FileSize)
	r.FormattedAverageSpeed = formatBytes(r.AverageSpeed) + "/s"
	r.FormattedMaxSpeed = formatBytes(r.MaxSpeed) + "/s"
	r.FormattedRealtimeSpeed = formatBytes(r.RealtimeSpeed) + "/s"
	r.FormattedTimeSpent = formatDuration(time.Duration(r.TimeSpentInMilliSec) * time.Millisecond)
	r.FormattedRemainingTime = formatDuration(time.Duration(r.RemainingTimeInSec) * time.Second)
}

// Forget drops tracked per-tick state for an id, called when a task
// completes, closes, or is removed so the map never grows unbounded.
func (a *Accountant) Forget(id string) {
	delete(a.prevBytes, id)
	delete(a.prevTick, id)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < 0 {
		n = 0
	}
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}
