//go:build !windows

package security

import (
	"syscall"

	"camview/internal/constants"
)

func hasEnoughDiskSpace(dir string) bool {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return true
	}

	available := stat.Bavail * uint64(stat.Bsize)
	return int64(available) > constants.MinDiskSpaceRequired
}
