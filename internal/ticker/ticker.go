// Package ticker implements the single process-wide cooperative scheduler
// that drives progress accounting and stall detection across every
// registered TaskEngine, adapted from the donor's per-download
// time.NewTicker idiom (internal/engine/executor.go) generalized into a
// single shared loop rather than one ticker per task.
package ticker

import (
	"sync"
	"time"
)

// tickPeriod is the fine-grained tick used for progress accounting.
const tickPeriod = 500 * time.Millisecond

// coarseEvery fires the coarser stall/WaitingForNetwork check every third
// fine tick (~1.5s).
const coarseEvery = 3

// Engine is anything that wants to be driven by the shared ticker.
type Engine interface {
	OnTick(loopCount int64)
}

// Ticker fans a single time.Ticker out to a set of registered Engines.
type Ticker struct {
	mu       sync.Mutex
	engines  map[string]Engine
	stopCh   chan struct{}
	stopOnce sync.Once
}

func New() *Ticker {
	return &Ticker{
		engines: make(map[string]Engine),
		stopCh:  make(chan struct{}),
	}
}

// Register adds an engine under id, typically called on transition to
// DOWNLOADING.
func (t *Ticker) Register(id string, e Engine) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.engines[id] = e
}

// Unregister removes an engine, typically called on COMPLETE or CLOSED.
func (t *Ticker) Unregister(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.engines, id)
}

// Run starts the cooperative loop and blocks until Stop is called.
func (t *Ticker) Run() {
	tk := time.NewTicker(tickPeriod)
	defer tk.Stop()

	var loopCount int64
	for {
		select {
		case <-t.stopCh:
			return
		case <-tk.C:
			loopCount++
			t.fanOut(loopCount)
		}
	}
}

// Stop ends the Run loop. Safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
}

func (t *Ticker) fanOut(loopCount int64) {
	t.mu.Lock()
	snapshot := make([]Engine, 0, len(t.engines))
	for _, e := range t.engines {
		snapshot = append(snapshot, e)
	}
	t.mu.Unlock()

	for _, e := range snapshot {
		e.OnTick(loopCount)
	}
}

// IsCoarseTick reports whether loopCount corresponds to the coarser
// ~1.5s stall-detection/WaitingForNetwork-reactivation tick.
func IsCoarseTick(loopCount int64) bool {
	return loopCount%coarseEvery == 0
}
