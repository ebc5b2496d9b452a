// Package policyfile holds the shared vocabulary for the privilege-policy
// file: its default location, required ownership and permission bits, and
// point-in-time snapshots of its content.
package policyfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// DefaultPath is the policy file edited when no other path is given.
const DefaultPath = "/etc/sudoers"

// Mode is applied to the policy file on every commit: r--r-----.
const Mode os.FileMode = 0o440

// TempMode is applied to the temporary copy handed to the editor.
// Owner-only access; the exact historical bits are unconfirmed.
const TempMode os.FileMode = 0o600

// Owner identifies the privileged user and group owning the policy file.
type Owner struct {
	UID int
	GID int
}

// Root is the privileged identity on a standard system.
var Root = Owner{UID: 0, GID: 0}

func (o Owner) String() string {
	return fmt.Sprintf("(%d, %d)", o.UID, o.GID)
}

// Snapshot is the policy file content as observed at session start.
type Snapshot struct {
	Existed bool
	Content []byte
}

// Read captures the current content of path. A missing file yields an
// empty snapshot with Existed=false.
func Read(path string) (Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, nil
		}
		return Snapshot{}, err
	}
	return Snapshot{Existed: true, Content: b}, nil
}
