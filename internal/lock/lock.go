package lock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrBusy is returned when another session already holds the lock.
var ErrBusy = errors.New("lock busy")

// Suffix is appended to the policy path to derive the lock file path.
const Suffix = ".lock"

// SessionLock provides flock-based exclusive locking for one edit session.
type SessionLock struct {
	file *os.File
	path string
}

// PathFor returns the lock file path guarding policyPath.
func PathFor(policyPath string) string {
	return policyPath + Suffix
}

// Acquire takes the lock guarding policyPath. See NewSessionLock.
func Acquire(policyPath string) (*SessionLock, error) {
	return NewSessionLock(PathFor(policyPath))
}

// NewSessionLock acquires an exclusive non-blocking lock on the given path.
// It makes a single attempt and returns an error wrapping ErrBusy if the
// lock is already held by another process.
func NewSessionLock(path string) (*SessionLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return nil, fmt.Errorf("%s: %w", path, ErrBusy)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	return &SessionLock{file: f, path: path}, nil
}

// Path returns the lock file path.
func (l *SessionLock) Path() string {
	return l.path
}

// Release releases the file lock and closes the lock file.
// Calling Release more than once is a no-op.
func (l *SessionLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
