//go:build windows

package security

import (
	"golang.org/x/sys/windows"

	"camview/internal/constants"
)

func hasEnoughDiskSpace(dir string) bool {
	pathPtr, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return true
	}

	var freeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeBytes, nil, nil); err != nil {
		return true
	}

	return int64(freeBytes) > constants.MinDiskSpaceRequired
}
