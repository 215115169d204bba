package controlloop

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// SingletonLock is an advisory, non-blocking exclusive file lock that
// prevents a second daemon instance from running concurrently against the
// same host.
type SingletonLock struct {
	file *os.File
}

// AcquireLock opens path and takes an exclusive, non-blocking flock on it.
// It returns an error if another process already holds the lock.
func AcquireLock(path string) (*SingletonLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock: another instance is already running: %w", err)
	}

	return &SingletonLock{file: f}, nil
}

// Release drops the lock and closes the underlying file.
func (l *SingletonLock) Release() error {
	if l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	l.file = nil
	return err
}
