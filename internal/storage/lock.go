package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// FileLock is an advisory exclusive lock guarding the persisted stores. The
// external scheduler should not overlap runs; the lock makes an accidental
// overlap serialise instead of losing one pass's writes.
type FileLock struct {
	file *os.File
}

// AcquireLock takes the advisory lock, blocking until the holder releases it.
func AcquireLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		file.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &FileLock{file: file}, nil
}

// Release drops the lock. Safe to call once; the file itself is kept around.
func (l *FileLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return fmt.Errorf("unlock: %w", unlockErr)
	}
	return closeErr
}
