package session

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/i9wa4/visudo/internal/policyfile"
)

// Check validates the policy file in place without editing it. When strict
// is set, ownership and permission bits are verified as well. It returns
// the process exit status.
func (s *Session) Check(stdout io.Writer, strict, quiet bool) int {
	content, err := os.ReadFile(s.PolicyPath)
	if err != nil {
		s.errorf("unable to open %s: %v", s.PolicyPath, err)
		return 1
	}

	diags := s.validator()(content)
	if len(diags) > 0 {
		for _, d := range diags {
			fmt.Fprintf(s.Stderr, "%s: %s\n", s.Prog, d.Format(s.PolicyPath))
		}
		return 1
	}

	if strict {
		if msg := s.checkAttributes(); msg != "" {
			s.errorf("%s", msg)
			return 1
		}
	}

	if !quiet {
		fmt.Fprintf(stdout, "%s: parsed OK\n", s.PolicyPath)
	}
	return 0
}

// checkAttributes returns a non-empty message when the installed file's
// owner or mode differs from what a commit would produce.
func (s *Session) checkAttributes() string {
	info, err := os.Stat(s.PolicyPath)
	if err != nil {
		return fmt.Sprintf("unable to stat %s: %v", s.PolicyPath, err)
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		got := policyfile.Owner{UID: int(st.Uid), GID: int(st.Gid)}
		if got != s.Owner {
			return fmt.Sprintf("%s: wrong owner %s should be %s", s.PolicyPath, got, s.Owner)
		}
	}
	if info.Mode().Perm() != policyfile.Mode {
		return fmt.Sprintf("%s: bad permissions, should be mode %04o", s.PolicyPath, uint32(policyfile.Mode))
	}
	return ""
}
