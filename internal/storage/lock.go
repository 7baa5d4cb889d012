package storage

import (
	"os"
	"sync"
	"syscall"
)

// FileLock serializes writers of one record, both inside this process
// (mutex) and across deskpilot processes sharing a data dir (flock on a
// sibling .lock file).
type FileLock struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewFileLock creates a new file lock for the record at path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Lock acquires the lock, blocking until it is available.
func (l *FileLock) Lock() error {
	l.mu.Lock()

	f, err := os.OpenFile(l.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		l.mu.Unlock()
		return err
	}

	l.file = f
	return nil
}

// Unlock releases the lock and removes the lock file.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	os.Remove(l.path + ".lock")

	l.file = nil
	l.mu.Unlock()
	return nil
}
