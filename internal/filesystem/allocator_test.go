package filesystem

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAllocateFileCreatesAndSizesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "placeholder.bin")

	a := NewAllocator()
	if err := a.AllocateFile(path, 4096); err != nil {
		t.Fatalf("AllocateFile: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat allocated file: %v", err)
	}
	if info.Size() != 4096 {
		t.Fatalf("expected size 4096, got %d", info.Size())
	}
}

func TestAllocateFileTruncatesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "placeholder.bin")
	if err := os.WriteFile(path, []byte("stale content"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	a := NewAllocator()
	if err := a.AllocateFile(path, 10); err != nil {
		t.Fatalf("AllocateFile: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat allocated file: %v", err)
	}
	if info.Size() != 10 {
		t.Fatalf("expected truncated size 10, got %d", info.Size())
	}
}
