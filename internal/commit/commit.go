// Package commit installs edited content as the policy file.
package commit

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/i9wa4/visudo/internal/policyfile"
)

// Result reports what Install did.
type Result int

const (
	// Unchanged means the content matched the snapshot and nothing was written.
	Unchanged Result = iota
	// Committed means the policy file was replaced (or created).
	Committed
)

func (r Result) String() string {
	if r == Committed {
		return "committed"
	}
	return "unchanged"
}

// Install writes content to policyPath unless it is byte-identical to prev.
// An absent policy file is always created, even with empty content. The
// installed file always carries policyfile.Mode and owner.
func Install(policyPath string, prev policyfile.Snapshot, content []byte, owner policyfile.Owner) (Result, error) {
	if prev.Existed && bytes.Equal(prev.Content, content) {
		return Unchanged, nil
	}
	if err := WriteFileAtomic(policyPath, content, policyfile.Mode, owner); err != nil {
		return Unchanged, err
	}
	return Committed, nil
}

// WriteFileAtomic replaces path with data through a sibling temporary file
// and a rename, so readers observe either the old or the new content.
// Mode and ownership are fixed before the rename.
func WriteFileAtomic(path string, data []byte, perm os.FileMode, owner policyfile.Owner) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("creating temp in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := tmp.Chown(owner.UID, owner.GID); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chown %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming over %s: %w", path, err)
	}
	committed = true

	// Best effort: persist the directory entry.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
