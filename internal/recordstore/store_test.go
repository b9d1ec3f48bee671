package recordstore

import (
	"path/filepath"
	"testing"
	"time"

	"aio-download-engine/internal/config"
	"aio-download-engine/internal/record"
)

func newTestRecord(t *testing.T) *record.Record {
	t.Helper()
	r := record.New("https://example.com/file.bin", record.TransferDirectHTTP, config.Defaults())
	r.FileDirectory = t.TempDir()
	r.FileName = "file.bin"
	r.FileSize = 1024
	return r
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := newTestRecord(t)
	if err := s.Save(r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load(r.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != r.ID || loaded.FileURL != r.FileURL {
		t.Fatalf("round trip mismatch: got %+v", loaded)
	}
}

func TestLoadPrefersBinaryFallsBackToJSON(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := newTestRecord(t)
	if err := s.Save(r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := writeAtomic(s.BinaryPath(r.ID), []byte("not a valid gob stream")); err != nil {
		t.Fatalf("corrupt binary: %v", err)
	}

	loaded, err := s.Load(r.ID)
	if err != nil {
		t.Fatalf("Load after corruption: %v", err)
	}
	if loaded.ID != r.ID {
		t.Fatalf("expected fallback to JSON to still find %s, got %s", r.ID, loaded.ID)
	}
}

func TestDeleteRemovesAllArtifacts(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := newTestRecord(t)
	r.CookieString = "a=1; b=2"
	if err := s.Save(r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := s.Delete(r, false); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := s.Load(r.ID); err == nil {
		t.Fatalf("expected Load to fail after Delete")
	}
}

func TestWriteCookieFileFormat(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := newTestRecord(t)
	r.CookieString = "session=abc123; theme=dark"

	path, ok, err := s.WriteCookieFile(r)
	if err != nil {
		t.Fatalf("WriteCookieFile: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true for non-empty cookie string")
	}
	if filepath.Base(path) != r.ID+"_cookies.txt" {
		t.Fatalf("unexpected cookie path: %s", path)
	}

	cookies, err := ReadCookieFile(path)
	if err != nil {
		t.Fatalf("ReadCookieFile: %v", err)
	}
	if cookies["session"] != "abc123" || cookies["theme"] != "dark" {
		t.Fatalf("unexpected cookies parsed: %+v", cookies)
	}
}

func TestWriteCookieFileNoneWhenEmpty(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := newTestRecord(t)

	_, ok, err := s.WriteCookieFile(r)
	if err != nil {
		t.Fatalf("WriteCookieFile: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false when record has no cookies")
	}
}

func TestMergerRebuildsOnDrift(t *testing.T) {
	dataDir := t.TempDir()
	s, err := New(dataDir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := newTestRecord(t)
	if err := s.Save(r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m := NewMerger(s)
	if err := m.rebuild(); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if _, fresh := m.LoadIfFresh(); !fresh {
		t.Fatalf("expected snapshot to be fresh immediately after rebuild")
	}

	time.Sleep(10 * time.Millisecond)
	r.DownloadedByte = 512
	if err := s.Save(r); err != nil {
		t.Fatalf("Save (update): %v", err)
	}

	stale, err := m.isStale()
	if err != nil {
		t.Fatalf("isStale: %v", err)
	}
	if !stale {
		t.Fatalf("expected snapshot to be stale after record update")
	}

	m.tick()

	if _, fresh := m.LoadIfFresh(); !fresh {
		t.Fatalf("expected snapshot fresh again after tick rebuild")
	}
}
