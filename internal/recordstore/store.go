// Package recordstore persists record.Record documents to disk. Each
// record is mirrored in two formats under the same data directory: a
// compact gob-encoded binary file (`{id}.dat`, preferred on load for
// speed) and a human-inspectable JSON file (`{id}.json`, canonical field
// names, used as a compatibility surface and as the Merger's freshness
// signal). A background Merger (merger.go) consolidates every JSON file
// into a single snapshot every few seconds.
package recordstore

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"aio-download-engine/internal/record"
)

// Store reads and writes Record documents under a data directory, one
// JSON file and one binary file per id, each guarded by its own lock so
// concurrent tasks never contend on an unrelated id.
type Store struct {
	dataDir string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create record store dir: %w", err)
	}
	return &Store{
		dataDir: dataDir,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) JSONPath(id string) string   { return filepath.Join(s.dataDir, id+".json") }
func (s *Store) BinaryPath(id string) string { return filepath.Join(s.dataDir, id+".dat") }
func (s *Store) ThumbnailPath(id string) string {
	return filepath.Join(s.dataDir, id+"_download.jpg")
}

// Save persists a Record in the order the on-disk formats depend on each
// other: the cookie file first (other steps may reference its path),
// then the in-memory completion/transient normalization, then the
// binary mirror, then the JSON mirror.
func (s *Store) Save(r *record.Record) error {
	l := s.lockFor(r.ID)
	l.Lock()
	defer l.Unlock()

	if strings.TrimSpace(r.CookieString) != "" {
		if _, _, err := s.writeCookieFileLocked(r); err != nil {
			return fmt.Errorf("write cookie file: %w", err)
		}
	}

	r.ResetTransients()
	if r.IsComplete {
		r.MarkCompleted()
	}
	r.Touch()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return fmt.Errorf("encode binary: %w", err)
	}
	if err := writeAtomic(s.BinaryPath(r.ID), buf.Bytes()); err != nil {
		return fmt.Errorf("write binary: %w", err)
	}

	jsonData, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if err := writeAtomic(s.JSONPath(r.ID), jsonData); err != nil {
		return fmt.Errorf("write json: %w", err)
	}

	return nil
}

// Load reads a Record by id, trying the binary file first; on failure or
// absence it falls back to JSON. A corrupt binary file is deleted so it
// does not keep shadowing a good JSON copy. After a JSON fallback Load
// re-runs Save, which rewrites both mirrors; a successful binary load
// returns the decoded record without calling Save, so the JSON mirror is
// not refreshed on that path.
func (s *Store) Load(id string) (*record.Record, error) {
	l := s.lockFor(id)
	l.Lock()

	if r, err := s.loadBinary(id); err == nil {
		l.Unlock()
		return r, nil
	} else if !os.IsNotExist(err) {
		os.Remove(s.BinaryPath(id))
	}

	r, err := s.loadJSON(id)
	l.Unlock()
	if err != nil {
		return nil, err
	}
	_ = s.Save(r)
	return r, nil
}

func (s *Store) loadJSON(id string) (*record.Record, error) {
	data, err := os.ReadFile(s.JSONPath(id))
	if err != nil {
		return nil, fmt.Errorf("read json: %w", err)
	}
	var r record.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal json: %w", err)
	}
	return &r, nil
}

func (s *Store) loadBinary(id string) (*record.Record, error) {
	data, err := os.ReadFile(s.BinaryPath(id))
	if err != nil {
		return nil, err
	}
	var r record.Record
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode binary: %w", err)
	}
	return &r, nil
}

// ListIDs enumerates every id with at least one persisted copy, skipping
// any stray name containing "temp".
func (s *Store) ListIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("read record store dir: %w", err)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if strings.Contains(name, "temp") {
			continue
		}
		ext := filepath.Ext(name)
		if ext != ".json" && ext != ".dat" {
			continue
		}
		id := name[:len(name)-len(ext)]
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Delete implements deleteFromDisk: removes the JSON, binary, cookie,
// and thumbnail files, any staging fragment whose basename matches the
// record's temp extractor destination, the merged snapshot (so a
// deleted id never survives inside it), and — when the record lives in
// the private app folder — the downloaded file itself.
func (s *Store) Delete(r *record.Record, privateFolder bool) error {
	l := s.lockFor(r.ID)
	l.Lock()
	defer l.Unlock()

	paths := []string{
		s.JSONPath(r.ID),
		s.BinaryPath(r.ID),
		s.cookiePathFor(r.ID),
		s.ThumbnailPath(r.ID),
	}
	if privateFolder {
		paths = append(paths, r.DestinationPath(), r.TempDestinationPath())
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}

	if base := filepath.Base(r.TempYtdlpDestinationFilePath); base != "." && base != "" {
		s.removeStagingFragments(base)
	}

	// The merged snapshot was built from the JSON file just removed above.
	// isStale() only compares existing JSON mtimes against the snapshot's,
	// so a deletion never makes anything newer and the stale id would
	// otherwise live on in the snapshot forever. Drop it so the Merger
	// rebuilds from scratch on its next tick.
	if err := os.Remove(filepath.Join(s.dataDir, mergedSnapshotName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove merged snapshot: %w", err)
	}

	return nil
}

func (s *Store) removeStagingFragments(base string) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), base) {
			os.Remove(filepath.Join(s.dataDir, e.Name()))
		}
	}
}

func (s *Store) cookiePathFor(id string) string {
	return filepath.Join(s.dataDir, id+"_cookies.txt")
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
