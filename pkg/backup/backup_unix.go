//go:build !windows

package backup

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// checkDiskSpace fails when dir's volume cannot hold need bytes plus MinFreeBytes.
func checkDiskSpace(dir string, need uint64) error {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return fmt.Errorf("backup: failed to get disk stats: %w", err)
	}

	available := uint64(stat.Bavail) * uint64(stat.Bsize)
	if available < need+MinFreeBytes {
		return fmt.Errorf("%w: %d bytes available, %d required", ErrInsufficientSpace, available, need+MinFreeBytes)
	}
	return nil
}
