// Package diskguard implements DiskSpaceGuard: a free-space check run
// before a TaskEngine creates the destination placeholder or any
// extractor staging file, grounded on the teacher's own disk-usage query
// for its analytics surface.
package diskguard

import (
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// Guard checks free space for a given path; see HasSpace for which
// filesystem it queries.
type Guard struct{}

func New() *Guard {
	return &Guard{}
}

// HasSpace reports whether the volume named in path (filepath.VolumeName)
// has at least requiredBytes free. Where paths carry no volume name, as on
// Unix-like systems, it queries the filesystem mounted at "/", whichever
// filesystem path itself is on.
func (g *Guard) HasSpace(path string, requiredBytes int64) (bool, error) {
	volume := volumeRoot(path)
	usage, err := disk.Usage(volume)
	if err != nil {
		return false, fmt.Errorf("disk usage for %s: %w", volume, err)
	}
	return int64(usage.Free) >= requiredBytes, nil
}

func volumeRoot(path string) string {
	volumePath := filepath.VolumeName(path)
	if volumePath == "" {
		return "/"
	}
	return volumePath + string(filepath.Separator)
}
