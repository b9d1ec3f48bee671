// Package mp4 implements a minimal top-level MP4 atom walker, used to
// rewrite a freshly-downloaded file so its "moov" atom precedes "mdat"
// (a streaming-friendly layout). No MP4-parsing library appears anywhere
// in the retrieved corpus, so this is a small hand-rolled reader built
// directly on encoding/binary and io — see DESIGN.md for the stdlib
// justification.
package mp4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// SpaceChecker abstracts the free-space pre-check Relocate performs
// before writing its rewritten output, so this package does not need to
// import the disk-usage library directly.
type SpaceChecker interface {
	HasSpace(path string, requiredBytes int64) (bool, error)
}

type atom struct {
	kind   string
	offset int64
	size   int64 // total atom size including the 8-byte header
}

const headerSize = 8

// readAtoms walks the top-level atoms of an MP4 file.
func readAtoms(f *os.File) ([]atom, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	total := info.Size()

	var atoms []atom
	var offset int64
	for offset < total {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
		var header [headerSize]byte
		if _, err := io.ReadFull(f, header[:]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		size := int64(binary.BigEndian.Uint32(header[:4]))
		kind := string(header[4:8])
		if size == 1 {
			var sizeBuf [8]byte
			if _, err := io.ReadFull(f, sizeBuf[:]); err != nil {
				return nil, err
			}
			size = int64(binary.BigEndian.Uint64(sizeBuf[:]))
		}
		if size < headerSize {
			return nil, fmt.Errorf("mp4: invalid atom size %d for %q at offset %d", size, kind, offset)
		}
		atoms = append(atoms, atom{kind: kind, offset: offset, size: size})
		offset += size
	}
	return atoms, nil
}

// hasFtypSignature checks the 4..7 byte range of the file for the "ftyp"
// marker, per the validation rule.
func hasFtypSignature(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var header [8]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return false
	}
	return string(header[4:8]) == "ftyp"
}

// Relocate rewrites src into dst with "moov" preceding "mdat". It validates
// the input and destination per SPEC_FULL's MP4 relocation rules and
// cleans up any partial output before returning an error.
func Relocate(src, dst string, checker SpaceChecker) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("mp4: source stat: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("mp4: source is empty")
	}
	if !hasFtypSignature(src) {
		return errors.New("mp4: missing ftyp signature")
	}

	if checker != nil {
		ok, err := checker.HasSpace(dst, info.Size()*2)
		if err != nil {
			return fmt.Errorf("mp4: space check: %w", err)
		}
		if !ok {
			return errors.New("mp4: insufficient free space for relocation")
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("mp4: open source: %w", err)
	}
	defer in.Close()

	atoms, err := readAtoms(in)
	if err != nil {
		return fmt.Errorf("mp4: walk atoms: %w", err)
	}

	moovIdx, mdatIdx := -1, -1
	for i, a := range atoms {
		switch a.kind {
		case "moov":
			moovIdx = i
		case "mdat":
			if mdatIdx == -1 {
				mdatIdx = i
			}
		}
	}
	if moovIdx == -1 || mdatIdx == -1 {
		return errors.New("mp4: missing moov or mdat atom")
	}
	if moovIdx < mdatIdx {
		// Already in the desired order; a plain copy suffices.
		return copyWhole(src, dst)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("mp4: create destination: %w", err)
	}
	success := false
	defer func() {
		out.Close()
		if !success {
			os.Remove(dst)
		}
	}()

	order := reorderFrontFirst(atoms, moovIdx)
	for _, a := range order {
		if _, err := in.Seek(a.offset, io.SeekStart); err != nil {
			return fmt.Errorf("mp4: seek atom %q: %w", a.kind, err)
		}
		if _, err := io.CopyN(out, in, a.size); err != nil {
			return fmt.Errorf("mp4: copy atom %q: %w", a.kind, err)
		}
	}
	success = true
	return nil
}

// reorderFrontFirst returns the atom list with the atom at moovIdx moved
// immediately before the first "mdat", leaving every other atom's relative
// order untouched.
func reorderFrontFirst(atoms []atom, moovIdx int) []atom {
	moov := atoms[moovIdx]
	rest := make([]atom, 0, len(atoms)-1)
	for i, a := range atoms {
		if i != moovIdx {
			rest = append(rest, a)
		}
	}
	out := make([]atom, 0, len(atoms))
	inserted := false
	for _, a := range rest {
		if a.kind == "mdat" && !inserted {
			out = append(out, moov)
			inserted = true
		}
		out = append(out, a)
	}
	if !inserted {
		out = append(out, moov)
	}
	return out
}

func copyWhole(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}
