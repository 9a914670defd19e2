//go:build windows

package preflight

import (
	"golang.org/x/sys/windows"
)

// freeBytes returns the free space available to the calling user on the
// volume holding path.
func freeBytes(path string) (uint64, error) {
	var free, total, totalFree uint64
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return 0, err
	}
	return free, nil
}
