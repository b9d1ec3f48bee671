package mp4

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func writeAtom(t *testing.T, f *os.File, kind string, payload []byte) {
	t.Helper()
	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], uint32(8+len(payload)))
	copy(header[4:8], kind)
	if _, err := f.Write(header[:]); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := f.Write(payload); err != nil {
		t.Fatalf("write payload: %v", err)
	}
}

func buildTestMP4(t *testing.T, dir string, mdatFirst bool) string {
	t.Helper()
	path := filepath.Join(dir, "in.mp4")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	writeAtom(t, f, "ftyp", []byte("isom0000"))
	if mdatFirst {
		writeAtom(t, f, "mdat", make([]byte, 32))
		writeAtom(t, f, "moov", []byte("metadata"))
	} else {
		writeAtom(t, f, "moov", []byte("metadata"))
		writeAtom(t, f, "mdat", make([]byte, 32))
	}
	return path
}

type alwaysHasSpace struct{}

func (alwaysHasSpace) HasSpace(string, int64) (bool, error) { return true, nil }

func TestRelocateReordersMoovBeforeMdat(t *testing.T) {
	dir := t.TempDir()
	src := buildTestMP4(t, dir, true)
	dst := filepath.Join(dir, "out.mp4")

	if err := Relocate(src, dst, alwaysHasSpace{}); err != nil {
		t.Fatalf("Relocate: %v", err)
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	atoms, err := readAtoms(f)
	if err != nil {
		t.Fatalf("readAtoms: %v", err)
	}

	var moovPos, mdatPos int
	for i, a := range atoms {
		if a.kind == "moov" {
			moovPos = i
		}
		if a.kind == "mdat" {
			mdatPos = i
		}
	}
	if moovPos >= mdatPos {
		t.Fatalf("expected moov before mdat, got order %+v", atoms)
	}
}

func TestRelocateRejectsMissingFtyp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.mp4")
	if err := os.WriteFile(path, []byte("not an mp4 at all"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := Relocate(path, filepath.Join(dir, "out.mp4"), alwaysHasSpace{}); err == nil {
		t.Fatalf("expected error for missing ftyp signature")
	}
}
