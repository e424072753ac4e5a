//go:build windows

package backup

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// checkDiskSpace fails when dir's volume cannot hold need bytes plus MinFreeBytes.
func checkDiskSpace(dir string, need uint64) error {
	pathPtr, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return fmt.Errorf("backup: failed to convert path: %w", err)
	}

	var available, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &available, &total, &totalFree); err != nil {
		return fmt.Errorf("backup: failed to get disk stats: %w", err)
	}
	if available < need+MinFreeBytes {
		return fmt.Errorf("%w: %d bytes available, %d required", ErrInsufficientSpace, available, need+MinFreeBytes)
	}
	return nil
}
