// Package tempcopy manages the restricted working copy of the policy file
// that the external editor modifies.
package tempcopy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"

	"github.com/i9wa4/visudo/internal/policyfile"
)

// ErrMissing is returned by Reread when the temporary file no longer exists.
var ErrMissing = errors.New("temporary file missing")

// Suffix is appended to the policy path to derive the temporary path.
const Suffix = ".tmp"

// Copy is a materialized temporary copy together with the policy file
// snapshot it was seeded from.
type Copy struct {
	Path     string
	Original policyfile.Snapshot
}

// Path returns the temporary path for policyPath.
func Path(policyPath string) string {
	return policyPath + Suffix
}

// Materialize snapshots policyPath and writes its bytes verbatim to a fresh
// temporary file (empty if the policy file is absent). The caller must hold
// the session lock: any stale temporary file is removed first.
func Materialize(policyPath string, owner policyfile.Owner) (*Copy, error) {
	snap, err := policyfile.Read(policyPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", policyPath, err)
	}

	tmpPath := Path(policyPath)
	if err := Dispose(tmpPath); err != nil {
		return nil, fmt.Errorf("removing stale %s: %w", tmpPath, err)
	}

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL|unix.O_NOFOLLOW|unix.O_CLOEXEC, policyfile.TempMode)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", tmpPath, err)
	}

	if err := seed(f, snap.Content, owner); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("preparing %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("closing %s: %w", tmpPath, err)
	}

	return &Copy{Path: tmpPath, Original: snap}, nil
}

// seed fixes mode and ownership before any content lands in the file.
func seed(f *os.File, content []byte, owner policyfile.Owner) error {
	// umask may have stripped bits; set them explicitly.
	if err := f.Chmod(policyfile.TempMode); err != nil {
		return err
	}
	if err := f.Chown(owner.UID, owner.GID); err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		return err
	}
	return f.Sync()
}

// Reread opens the temporary file by name and returns its content.
// A path removed (or replaced by a dangling link) while the editor ran
// yields ErrMissing.
func Reread(tmpPath string) ([]byte, error) {
	b, err := os.ReadFile(tmpPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrMissing
		}
		return nil, err
	}
	return b, nil
}

// Dispose removes the temporary file. A path that is already gone is not
// an error.
func Dispose(tmpPath string) error {
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
