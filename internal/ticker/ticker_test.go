package ticker

import (
	"sync/atomic"
	"testing"
	"time"
)

type countingEngine struct {
	ticks atomic.Int64
}

func (c *countingEngine) OnTick(loopCount int64) {
	c.ticks.Add(1)
}

func TestRegisteredEnginesReceiveTicks(t *testing.T) {
	tk := New()
	e := &countingEngine{}
	tk.Register("task-1", e)

	go tk.Run()
	defer tk.Stop()

	time.Sleep(1200 * time.Millisecond)
	if e.ticks.Load() == 0 {
		t.Fatalf("expected at least one tick to have fired")
	}
}

func TestUnregisterStopsFurtherTicks(t *testing.T) {
	tk := New()
	e := &countingEngine{}
	tk.Register("task-1", e)

	go tk.Run()
	defer tk.Stop()

	time.Sleep(600 * time.Millisecond)
	tk.Unregister("task-1")
	after := e.ticks.Load()

	time.Sleep(1200 * time.Millisecond)
	if e.ticks.Load() != after {
		t.Fatalf("expected no further ticks after unregister: before=%d after=%d", after, e.ticks.Load())
	}
}

func TestIsCoarseTick(t *testing.T) {
	cases := map[int64]bool{1: false, 2: false, 3: true, 6: true, 7: false}
	for loop, want := range cases {
		if got := IsCoarseTick(loop); got != want {
			t.Fatalf("IsCoarseTick(%d) = %v, want %v", loop, got, want)
		}
	}
}
