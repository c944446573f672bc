package o3config

import (
	"os"
	"path/filepath"
)

// fileLock is an exclusive lock held on an open lock file until Close.
type fileLock struct {
	f *os.File
}

// LockExclusive blocks until this process holds an exclusive lock on
// lockPath, creating the file and its directory if needed. The lock file
// itself is never removed.
func LockExclusive(lockPath string) (*fileLock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileLock{f: f}, nil
}

// Close releases the lock. Closing twice is harmless.
func (l *fileLock) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unlockFile(l.f)
	err := l.f.Close()
	l.f = nil
	return err
}
