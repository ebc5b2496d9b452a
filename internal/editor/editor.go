// Package editor resolves and runs the external program that edits the
// temporary copy of the policy file.
package editor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/i9wa4/visudo/internal/config"
)

// Replaceable for tests.
var execCommand = exec.Command

// EnvOverrides lists the environment variables consulted, in order, when
// env_editor is enabled.
var EnvOverrides = []string{"SUDO_EDITOR", "VISUAL", "EDITOR"}

// Command is a resolved editor invocation prefix: the program followed by
// any arguments that came with it.
type Command struct {
	Argv   []string
	Source string // "env:VISUAL", "config", "default"
}

// Program returns the executable name.
func (c Command) Program() string {
	if len(c.Argv) == 0 {
		return ""
	}
	return c.Argv[0]
}

func (c Command) String() string {
	return strings.Join(c.Argv, " ")
}

// Resolve picks the editor. Priority:
// 1. SUDO_EDITOR, VISUAL, EDITOR (when cfg.EnvEditor)
// 2. cfg.Editor
// 3. config.DefaultEditor
// Blank values are skipped. Values are split on whitespace.
func Resolve(cfg *config.Config) Command {
	if cfg.EnvEditor {
		for _, name := range EnvOverrides {
			if argv := strings.Fields(os.Getenv(name)); len(argv) > 0 {
				return Command{Argv: argv, Source: "env:" + name}
			}
		}
	}
	if argv := strings.Fields(cfg.Editor); len(argv) > 0 {
		return Command{Argv: argv, Source: "config"}
	}
	return Command{Argv: []string{config.DefaultEditor}, Source: "default"}
}

// ExitStatus describes how the editor process terminated.
type ExitStatus struct {
	Code   int            // -1 when killed by a signal
	Signal syscall.Signal // zero unless killed by a signal
}

// Success reports a zero exit code.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == 0
}

func (s ExitStatus) String() string {
	if s.Signal != 0 {
		return fmt.Sprintf("killed by %s", s.Signal)
	}
	return fmt.Sprintf("exit status %d", s.Code)
}

// Args builds the argument vector passed to the editor: any configured
// arguments, then "--" and the temporary path.
func Args(cmd Command, tmpPath string) []string {
	args := make([]string, 0, len(cmd.Argv)+1)
	args = append(args, cmd.Argv[1:]...)
	return append(args, "--", tmpPath)
}

// Run starts the editor on tmpPath and waits for it without a timeout.
// The editor shares this process's stdio. An error is returned only when
// the editor could not be started; how it exited is reported in
// ExitStatus.
func Run(ctx context.Context, cmd Command, tmpPath string) (ExitStatus, error) {
	if len(cmd.Argv) == 0 {
		return ExitStatus{}, errors.New("no editor configured")
	}
	if err := ctx.Err(); err != nil {
		return ExitStatus{}, err
	}

	c := execCommand(cmd.Program(), Args(cmd, tmpPath)...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr

	if err := c.Start(); err != nil {
		return ExitStatus{}, fmt.Errorf("starting %s: %w", cmd.Program(), err)
	}

	err := c.Wait()
	if err == nil {
		return ExitStatus{}, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return ExitStatus{}, fmt.Errorf("waiting for %s: %w", cmd.Program(), err)
	}

	status := ExitStatus{Code: exitErr.ExitCode()}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = ws.Signal()
	}
	return status, nil
}
