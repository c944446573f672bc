//go:build windows

package o3config

import (
	"os"

	"golang.org/x/sys/windows"
)

// The whole addressable range is locked, as flock does on unix.
const lockRange = ^uint32(0)

func lockFile(f *os.File) error {
	var ol windows.Overlapped
	return windows.LockFileEx(windows.Handle(f.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, lockRange, lockRange, &ol)
}

func unlockFile(f *os.File) error {
	var ol windows.Overlapped
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, lockRange, lockRange, &ol)
}
