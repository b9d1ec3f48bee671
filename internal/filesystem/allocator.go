package filesystem

import (
	"fmt"
	"os"
)

// Allocator creates a TaskEngine's destination placeholder file before a
// transfer starts, so segment writers can WriteAt into a file that already
// exists. The placeholder is only record.DestinationPlaceholderBytes()
// long, so writes past that offset grow the file. Disk-space gating already
// happened in DiskSpaceGuard.HasSpace before this runs; Allocator only
// creates and sizes the file.
type Allocator struct{}

func NewAllocator() *Allocator {
	return &Allocator{}
}

// AllocateFile creates path if needed and truncates it to size. Truncate
// only sets the file length; it does not reserve disk blocks, so on most
// filesystems the result is sparse.
func (a *Allocator) AllocateFile(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open file for allocation: %w", err)
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("pre-allocate space: %w", err)
	}
	return nil
}
