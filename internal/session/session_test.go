package session

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/i9wa4/visudo/internal/editor"
	"github.com/i9wa4/visudo/internal/lock"
	"github.com/i9wa4/visudo/internal/logger"
	"github.com/i9wa4/visudo/internal/policyfile"
	"github.com/i9wa4/visudo/internal/recovery"
	"github.com/i9wa4/visudo/internal/tempcopy"
)

const validLine = "ALL ALL=(ALL:ALL) NOPASSWD: ALL"

// scriptedPrompter returns queued actions, then Discard.
type scriptedPrompter struct {
	actions []recovery.Action
	calls   int
}

func (p *scriptedPrompter) Choose(ctx context.Context) (recovery.Action, error) {
	p.calls++
	if len(p.actions) == 0 {
		return recovery.ActionDiscard, nil
	}
	a := p.actions[0]
	p.actions = p.actions[1:]
	return a, nil
}

type fixture struct {
	dir    string
	policy string
	stderr *bytes.Buffer
	prompt *scriptedPrompter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{
		dir:    dir,
		policy: filepath.Join(dir, "sudoers"),
		stderr: &bytes.Buffer{},
		prompt: &scriptedPrompter{},
	}
}

func (f *fixture) seed(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(f.policy, []byte(content), 0o440); err != nil {
		t.Fatalf("seeding policy: %v", err)
	}
}

// editorScript writes a /bin/sh editor. The temporary path is $2.
func (f *fixture) editorScript(t *testing.T, body string) editor.Command {
	t.Helper()
	path := filepath.Join(f.dir, "editor.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o700); err != nil {
		t.Fatalf("writing editor: %v", err)
	}
	return editor.Command{Argv: []string{path}, Source: "test"}
}

func (f *fixture) session(cmd editor.Command) *Session {
	return &Session{
		Prog:       "visudo",
		PolicyPath: f.policy,
		Owner:      policyfile.Owner{UID: os.Getuid(), GID: os.Getgid()},
		Editor:     cmd,
		Prompter:   f.prompt,
		Stderr:     f.stderr,
		Logger:     logger.Discard(),
	}
}

func (f *fixture) policyContent(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(f.policy)
	if err != nil {
		t.Fatalf("reading policy: %v", err)
	}
	return string(b)
}

func (f *fixture) assertCleanedUp(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(tempcopy.Path(f.policy)); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind (stat err: %v)", err)
	}
	lk, err := lock.Acquire(f.policy)
	if err != nil {
		t.Errorf("lock still held after session: %v", err)
		return
	}
	_ = lk.Release()
}

func TestRun_LockBusy(t *testing.T) {
	f := newFixture(t)
	f.seed(t, validLine+"\n")
	held, err := lock.Acquire(f.policy)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer func() { _ = held.Release() }()

	res := f.session(f.editorScript(t, "echo touched >> \"$2\"")).Run(context.Background())

	if res.Outcome != AbortedLockBusy || res.ExitCode() != 1 {
		t.Errorf("got %s exit %d, want aborted-lock-busy exit 1", res.Outcome, res.ExitCode())
	}
	if !errors.Is(res.Err, lock.ErrBusy) {
		t.Errorf("err: got %v, want ErrBusy", res.Err)
	}
	want := "visudo: " + f.policy + " busy, try again later"
	if !strings.Contains(f.stderr.String(), want) {
		t.Errorf("stderr: got %q, want to contain %q", f.stderr.String(), want)
	}
	if _, err := os.Stat(tempcopy.Path(f.policy)); !os.IsNotExist(err) {
		t.Error("temporary file created despite busy lock")
	}
	if got := f.policyContent(t); got != validLine+"\n" {
		t.Errorf("policy: got %q, want untouched", got)
	}
}

func TestRun_CreatesAbsentPolicy(t *testing.T) {
	f := newFixture(t)

	res := f.session(f.editorScript(t, "echo '"+validLine+"' >> \"$2\"")).Run(context.Background())

	if res.Outcome != Committed || res.ExitCode() != 0 {
		t.Fatalf("got %s exit %d (%v), want committed exit 0", res.Outcome, res.ExitCode(), res.Err)
	}
	if got := f.policyContent(t); got != validLine+"\n" {
		t.Errorf("policy: got %q, want %q", got, validLine+"\n")
	}
	info, _ := os.Stat(f.policy)
	if info.Mode().Perm() != policyfile.Mode {
		t.Errorf("mode: got %o, want %o", info.Mode().Perm(), policyfile.Mode)
	}
	f.assertCleanedUp(t)
}

func TestRun_CreatesAbsentPolicyWhenEditorLeavesItEmpty(t *testing.T) {
	f := newFixture(t)

	res := f.session(f.editorScript(t, "true")).Run(context.Background())

	if res.Outcome != Committed {
		t.Fatalf("got %s, want committed", res.Outcome)
	}
	info, err := os.Stat(f.policy)
	if err != nil {
		t.Fatalf("policy not created: %v", err)
	}
	if info.Mode().Perm() != policyfile.Mode {
		t.Errorf("mode: got %o, want %o", info.Mode().Perm(), policyfile.Mode)
	}
}

func TestRun_PassesTemporaryFile(t *testing.T) {
	f := newFixture(t)
	logPath := filepath.Join(f.dir, "args.txt")

	res := f.session(f.editorScript(t, "echo \"$@\" > "+logPath)).Run(context.Background())

	if res.ExitCode() != 0 {
		t.Fatalf("exit: got %d (%v), want 0", res.ExitCode(), res.Err)
	}
	b, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := strings.TrimSpace(string(b)), "-- "+tempcopy.Path(f.policy); got != want {
		t.Errorf("args: got %q, want %q", got, want)
	}
}

func TestRun_Unchanged(t *testing.T) {
	f := newFixture(t)
	f.seed(t, validLine+"\n")

	res := f.session(f.editorScript(t, "true")).Run(context.Background())

	if res.Outcome != Unchanged || res.ExitCode() != 0 {
		t.Errorf("got %s exit %d, want unchanged exit 0", res.Outcome, res.ExitCode())
	}
	want := "visudo: " + tempcopy.Path(f.policy) + " unchanged"
	if strings.TrimSpace(f.stderr.String()) != want {
		t.Errorf("stderr: got %q, want %q", f.stderr.String(), want)
	}
	f.assertCleanedUp(t)
}

func TestRun_AppendsValidLine(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "root ALL=(ALL:ALL) ALL\n")

	res := f.session(f.editorScript(t, "echo '"+validLine+"' >> \"$2\"")).Run(context.Background())

	if res.Outcome != Committed {
		t.Fatalf("got %s (%v), want committed", res.Outcome, res.Err)
	}
	if got, want := f.policyContent(t), "root ALL=(ALL:ALL) ALL\n"+validLine+"\n"; got != want {
		t.Errorf("policy: got %q, want %q", got, want)
	}
}

func TestRun_SyntaxErrorDiscardsOnEOF(t *testing.T) {
	f := newFixture(t)
	f.seed(t, validLine+"\n")
	s := f.session(f.editorScript(t, "echo 'this is fine' > \"$2\""))
	s.Prompter = recovery.NewLinePrompter(strings.NewReader(""), &bytes.Buffer{})

	res := s.Run(context.Background())

	if res.Outcome != DiscardedAfterSyntaxError || res.ExitCode() != 0 {
		t.Errorf("got %s exit %d, want discarded exit 0", res.Outcome, res.ExitCode())
	}
	if !strings.Contains(f.stderr.String(), "syntax error") {
		t.Errorf("stderr %q does not mention syntax error", f.stderr.String())
	}
	if got := f.policyContent(t); got != validLine+"\n" {
		t.Errorf("policy: got %q, want untouched", got)
	}
	f.assertCleanedUp(t)
}

func TestRun_EditorNonzeroExitIsSoft(t *testing.T) {
	f := newFixture(t)
	f.seed(t, validLine+"\n")

	res := f.session(f.editorScript(t, "exit 11")).Run(context.Background())

	if res.ExitCode() != 0 {
		t.Errorf("exit: got %d (%s), want 0", res.ExitCode(), res.Outcome)
	}
	if got := f.policyContent(t); got != validLine+"\n" {
		t.Errorf("policy: got %q, want untouched", got)
	}
}

func TestRun_TemporaryFileDeleted(t *testing.T) {
	f := newFixture(t)
	f.seed(t, validLine+"\n")

	res := f.session(f.editorScript(t, "rm \"$2\"")).Run(context.Background())

	if res.Outcome != AbortedMissingTemp || res.ExitCode() != 1 {
		t.Errorf("got %s exit %d, want aborted-missing-temp exit 1", res.Outcome, res.ExitCode())
	}
	if !errors.Is(res.Err, tempcopy.ErrMissing) {
		t.Errorf("err: got %v, want ErrMissing", res.Err)
	}
	want := "visudo: unable to re-open temporary file (" + tempcopy.Path(f.policy) + "), " + f.policy + " unchanged"
	if !strings.Contains(f.stderr.String(), want) {
		t.Errorf("stderr: got %q, want to contain %q", f.stderr.String(), want)
	}
	if got := f.policyContent(t); got != validLine+"\n" {
		t.Errorf("policy: got %q, want untouched", got)
	}
	f.assertCleanedUp(t)
}

func TestRun_ReEditKeepsEdits(t *testing.T) {
	f := newFixture(t)
	f.seed(t, validLine+"\n")
	counter := filepath.Join(f.dir, "rounds")
	// First round breaks the file, second round appends a fix on top of the
	// broken edit; the second round sees the first round's content.
	script := `if [ -f ` + counter + ` ]; then
  grep -q bogus "$2" || exit 3
  echo 'root ALL=(ALL) ALL' > "$2"
else
  touch ` + counter + `
  echo bogus >> "$2"
fi`
	f.prompt.actions = []recovery.Action{recovery.ActionReEdit}

	res := f.session(f.editorScript(t, script)).Run(context.Background())

	if res.Outcome != Committed {
		t.Fatalf("got %s (%v), want committed; stderr %q", res.Outcome, res.Err, f.stderr.String())
	}
	if f.prompt.calls != 1 {
		t.Errorf("prompt calls: got %d, want 1", f.prompt.calls)
	}
	if got := f.policyContent(t); got != "root ALL=(ALL) ALL\n" {
		t.Errorf("policy: got %q, want %q", got, "root ALL=(ALL) ALL\n")
	}
}

func TestRun_ForceSaveInstallsInvalidContent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, validLine+"\n")
	f.prompt.actions = []recovery.Action{recovery.ActionForceSave}

	res := f.session(f.editorScript(t, "echo 'this is fine' > \"$2\"")).Run(context.Background())

	if res.Outcome != Committed {
		t.Fatalf("got %s (%v), want committed", res.Outcome, res.Err)
	}
	if got := f.policyContent(t); got != "this is fine\n" {
		t.Errorf("policy: got %q, want %q", got, "this is fine\n")
	}
}

func TestRun_EditorCannotStart(t *testing.T) {
	f := newFixture(t)
	f.seed(t, validLine+"\n")
	missing := filepath.Join(f.dir, "no-such-editor")

	res := f.session(editor.Command{Argv: []string{missing}}).Run(context.Background())

	if res.Outcome != AbortedEditorFailure || res.ExitCode() != 1 {
		t.Errorf("got %s exit %d, want aborted-editor-failure exit 1", res.Outcome, res.ExitCode())
	}
	if !strings.Contains(f.stderr.String(), "visudo: unable to run "+missing) {
		t.Errorf("stderr: got %q", f.stderr.String())
	}
	f.assertCleanedUp(t)
}

func TestRun_Interrupted(t *testing.T) {
	f := newFixture(t)
	f.seed(t, validLine+"\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.session(f.editorScript(t, "echo x >> \"$2\"")).Run(ctx)

	if res.Outcome != AbortedInterrupted || res.ExitCode() != 1 {
		t.Errorf("got %s exit %d, want aborted-interrupted exit 1", res.Outcome, res.ExitCode())
	}
	want := "visudo: interrupted, " + f.policy + " unchanged"
	if !strings.Contains(f.stderr.String(), want) {
		t.Errorf("stderr: got %q, want to contain %q", f.stderr.String(), want)
	}
	if got := f.policyContent(t); got != validLine+"\n" {
		t.Errorf("policy: got %q, want untouched", got)
	}
	f.assertCleanedUp(t)
}

func TestRun_CommitFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, validLine+"\n")
	// The edit is valid, but the policy path becomes a non-empty directory
	// before install, so the final rename fails for any user.
	script := `echo 'root ALL=(ALL) ALL' > "$2"
rm -f ` + f.policy + `
mkdir ` + f.policy + `
touch ` + f.policy + `/keep`

	res := f.session(f.editorScript(t, script)).Run(context.Background())

	if res.Outcome != AbortedCommitFailure || res.ExitCode() != 1 {
		t.Fatalf("got %s exit %d (%v), want aborted-commit-failure exit 1", res.Outcome, res.ExitCode(), res.Err)
	}
	want := "visudo: unable to install " + f.policy + ": "
	if !strings.Contains(f.stderr.String(), want) {
		t.Errorf("stderr: got %q, want to contain %q", f.stderr.String(), want)
	}
	info, err := os.Stat(f.policy)
	if err != nil || !info.IsDir() {
		t.Fatalf("policy path replaced: stat %v, err %v", info, err)
	}
	if _, err := os.Stat(filepath.Join(f.policy, "keep")); err != nil {
		t.Errorf("directory contents disturbed: %v", err)
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		switch e.Name() {
		case "editor.sh", "sudoers", "sudoers.lock":
		default:
			t.Errorf("unexpected leftover %q", e.Name())
		}
	}
}

func TestRun_NilPrompterDiscards(t *testing.T) {
	f := newFixture(t)
	f.seed(t, validLine+"\n")
	s := f.session(f.editorScript(t, "echo bogus > \"$2\""))
	s.Prompter = nil

	res := s.Run(context.Background())

	if res.Outcome != DiscardedAfterSyntaxError || res.ExitCode() != 0 {
		t.Errorf("got %s exit %d, want discarded exit 0", res.Outcome, res.ExitCode())
	}
	if got := f.policyContent(t); got != validLine+"\n" {
		t.Errorf("policy: got %q, want untouched", got)
	}
	f.assertCleanedUp(t)
}

func TestOutcome_String(t *testing.T) {
	if got := DiscardedAfterSyntaxError.String(); got != "discarded-after-syntax-error" {
		t.Errorf("got %q", got)
	}
	if got := Outcome(99).String(); got != "outcome(99)" {
		t.Errorf("got %q", got)
	}
}
