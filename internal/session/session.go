// Package session runs one edit session of the policy file: lock, copy,
// edit, validate, recover or commit, and clean up.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/i9wa4/visudo/internal/commit"
	"github.com/i9wa4/visudo/internal/editor"
	"github.com/i9wa4/visudo/internal/lock"
	"github.com/i9wa4/visudo/internal/logger"
	"github.com/i9wa4/visudo/internal/policyfile"
	"github.com/i9wa4/visudo/internal/recovery"
	"github.com/i9wa4/visudo/internal/sudoers"
	"github.com/i9wa4/visudo/internal/tempcopy"
)

// Outcome is the single result of a session.
type Outcome int

const (
	Committed Outcome = iota
	Unchanged
	DiscardedAfterSyntaxError
	AbortedMissingTemp
	AbortedLockBusy
	AbortedEditorFailure
	AbortedCommitFailure
	AbortedInterrupted
	AbortedSetupFailure
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Unchanged:
		return "unchanged"
	case DiscardedAfterSyntaxError:
		return "discarded-after-syntax-error"
	case AbortedMissingTemp:
		return "aborted-missing-temp"
	case AbortedLockBusy:
		return "aborted-lock-busy"
	case AbortedEditorFailure:
		return "aborted-editor-failure"
	case AbortedCommitFailure:
		return "aborted-commit-failure"
	case AbortedInterrupted:
		return "aborted-interrupted"
	case AbortedSetupFailure:
		return "aborted-setup-failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what Run reports to the caller.
type Result struct {
	Outcome Outcome
	Err     error
}

// ExitCode maps the outcome to a process exit status. A discard after a
// syntax error still exits 0.
func (r Result) ExitCode() int {
	switch r.Outcome {
	case Committed, Unchanged, DiscardedAfterSyntaxError:
		return 0
	default:
		return 1
	}
}

// Validator checks policy content.
type Validator func(content []byte) []sudoers.Diagnostic

// Session holds everything one edit session needs.
type Session struct {
	Prog       string
	PolicyPath string
	Owner      policyfile.Owner
	Editor     editor.Command
	Prompter   recovery.Prompter
	Validate   Validator
	Stderr     io.Writer
	Logger     *slog.Logger
}

func (s *Session) errorf(format string, args ...any) {
	fmt.Fprintf(s.Stderr, "%s: "+format+"\n", append([]any{s.Prog}, args...)...)
}

func (s *Session) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logger.Discard()
}

// prompter falls back to a prompt with no input, which resolves to discard.
func (s *Session) prompter() recovery.Prompter {
	if s.Prompter != nil {
		return s.Prompter
	}
	return recovery.NewLinePrompter(strings.NewReader(""), s.Stderr)
}

func (s *Session) validator() Validator {
	if s.Validate != nil {
		return s.Validate
	}
	return sudoers.Validate
}

// Run executes the session. The temporary copy is disposed and the lock
// released on every path that got past acquisition.
func (s *Session) Run(ctx context.Context) Result {
	log := s.logger().With("policy", s.PolicyPath)

	lk, err := lock.Acquire(s.PolicyPath)
	if err != nil {
		if errors.Is(err, lock.ErrBusy) {
			s.errorf("%s busy, try again later", s.PolicyPath)
			return Result{Outcome: AbortedLockBusy, Err: err}
		}
		s.errorf("unable to lock %s: %v", s.PolicyPath, err)
		return Result{Outcome: AbortedSetupFailure, Err: err}
	}
	defer func() {
		if err := lk.Release(); err != nil {
			log.Warn("releasing lock failed", "lock", lk.Path(), "error", err)
		}
	}()
	log.Debug("lock acquired", "lock", lk.Path())

	tmp, err := tempcopy.Materialize(s.PolicyPath, s.Owner)
	if err != nil {
		s.errorf("unable to create temporary file: %v", err)
		return Result{Outcome: AbortedSetupFailure, Err: err}
	}
	defer func() {
		if err := tempcopy.Dispose(tmp.Path); err != nil {
			log.Warn("removing temporary file failed", "tmp", tmp.Path, "error", err)
		}
	}()
	log.Debug("temporary copy ready", "tmp", tmp.Path, "existed", tmp.Original.Existed)

	for {
		log.Debug("starting editor", "editor", s.Editor.String())
		status, err := editor.Run(ctx, s.Editor, tmp.Path)
		if err != nil {
			if ctx.Err() != nil {
				return s.interrupted(ctx.Err())
			}
			s.errorf("unable to run %s: %v", s.Editor.Program(), err)
			return Result{Outcome: AbortedEditorFailure, Err: err}
		}
		if !status.Success() {
			// Soft: the content is still evaluated.
			log.Info("editor exited abnormally", "status", status.String())
		}
		if ctx.Err() != nil {
			return s.interrupted(ctx.Err())
		}

		content, err := tempcopy.Reread(tmp.Path)
		if err != nil {
			s.errorf("unable to re-open temporary file (%s), %s unchanged", tmp.Path, s.PolicyPath)
			return Result{Outcome: AbortedMissingTemp, Err: err}
		}

		if tmp.Original.Existed && bytes.Equal(tmp.Original.Content, content) {
			s.errorf("%s unchanged", tmp.Path)
			return Result{Outcome: Unchanged}
		}

		diags := s.validator()(content)
		if len(diags) == 0 {
			return s.install(tmp, content)
		}
		for _, d := range diags {
			fmt.Fprintf(s.Stderr, "%s: %s\n", s.Prog, d.Format(tmp.Path))
		}

		action, err := s.prompter().Choose(ctx)
		if err != nil {
			log.Debug("prompt ended with error", "error", err)
		}
		if ctx.Err() != nil {
			return s.interrupted(ctx.Err())
		}
		log.Debug("recovery choice", "action", action.String())

		switch action {
		case recovery.ActionReEdit:
			continue
		case recovery.ActionForceSave:
			return s.install(tmp, content)
		default:
			return Result{Outcome: DiscardedAfterSyntaxError}
		}
	}
}

func (s *Session) install(tmp *tempcopy.Copy, content []byte) Result {
	res, err := commit.Install(s.PolicyPath, tmp.Original, content, s.Owner)
	if err != nil {
		s.errorf("unable to install %s: %v", s.PolicyPath, err)
		return Result{Outcome: AbortedCommitFailure, Err: err}
	}
	if res == commit.Unchanged {
		s.errorf("%s unchanged", tmp.Path)
		return Result{Outcome: Unchanged}
	}
	s.logger().Debug("policy installed", "policy", s.PolicyPath, "bytes", len(content))
	return Result{Outcome: Committed}
}

func (s *Session) interrupted(err error) Result {
	s.errorf("interrupted, %s unchanged", s.PolicyPath)
	return Result{Outcome: AbortedInterrupted, Err: err}
}
