package recordstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"aio-download-engine/internal/record"
)

// mergeInterval is how often the Merger checks for drift between the
// individual JSON records and the consolidated snapshot.
const mergeInterval = 5 * time.Second

// mergedSnapshotName is the Merger's single consolidated binary file.
const mergedSnapshotName = "merged_data_binary.dat"

// Merger maintains a single consolidated binary snapshot of every
// record's JSON mirror. It runs as one background goroutine with a
// single-flight guard so a slow rebuild never overlaps the next tick.
type Merger struct {
	store   *Store
	running atomic.Bool
}

func NewMerger(store *Store) *Merger {
	return &Merger{store: store}
}

func (m *Merger) snapshotPath() string {
	return filepath.Join(m.store.dataDir, mergedSnapshotName)
}

// Run blocks, checking for drift on every tick until ctx is cancelled.
func (m *Merger) Run(ctx context.Context) {
	ticker := time.NewTicker(mergeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Merger) tick() {
	if !m.running.CompareAndSwap(false, true) {
		return // previous rebuild still in flight, skip this tick
	}
	defer m.running.Store(false)

	stale, err := m.isStale()
	if err != nil || !stale {
		return
	}
	_ = m.rebuild()
}

// isStale reports whether any tracked {id}.json file (excluding anything
// whose name contains "temp") has a newer mtime than the merged snapshot.
func (m *Merger) isStale() (bool, error) {
	snapInfo, err := os.Stat(m.snapshotPath())
	if os.IsNotExist(err) {
		ids, lerr := m.store.ListIDs()
		return len(ids) > 0, lerr
	}
	if err != nil {
		return false, err
	}

	ids, err := m.store.ListIDs()
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		info, err := os.Stat(m.store.JSONPath(id))
		if err != nil {
			continue
		}
		if info.ModTime().After(snapInfo.ModTime()) {
			return true, nil
		}
	}
	return false, nil
}

// rebuild reads every current JSON record, de-duplicates by id, and
// atomically replaces the merged snapshot.
func (m *Merger) rebuild() error {
	ids, err := m.store.ListIDs()
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(ids))
	records := make([]*record.Record, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		r, err := m.store.loadJSON(id)
		if err != nil {
			continue
		}
		records = append(records, r)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(records); err != nil {
		return fmt.Errorf("encode merged snapshot: %w", err)
	}
	return writeAtomic(m.snapshotPath(), buf.Bytes())
}

// LoadIfFresh returns the merged snapshot iff no tracked JSON file has
// been touched since the last consolidation; otherwise it returns
// (nil, false) rather than risk handing back a stale view.
func (m *Merger) LoadIfFresh() ([]*record.Record, bool) {
	stale, err := m.isStale()
	if err != nil || stale {
		return nil, false
	}

	data, err := os.ReadFile(m.snapshotPath())
	if err != nil {
		return nil, false
	}
	var records []*record.Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&records); err != nil {
		return nil, false
	}
	return records, true
}
