package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/i9wa4/visudo/internal/config"
	"github.com/i9wa4/visudo/internal/editor"
	"github.com/i9wa4/visudo/internal/logger"
	"github.com/i9wa4/visudo/internal/recovery"
	"github.com/i9wa4/visudo/internal/session"
	"github.com/i9wa4/visudo/internal/sudoers"
	"github.com/i9wa4/visudo/internal/version"
)

const prog = "visudo"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	check      bool
	quiet      bool
	file       string
	configPath string
	debug      bool
	help       bool
	version    bool
}

func newFlagSet(opts *options, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(prog, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVarP(&opts.check, "check", "c", false, "check-only mode")
	fs.BoolVarP(&opts.quiet, "quiet", "q", false, "quiet mode, no parsed OK message")
	fs.StringVarP(&opts.file, "file", "f", "", "specify sudoers file location")
	fs.StringVar(&opts.configPath, "config", "", "path to config file (optional)")
	fs.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	fs.BoolVarP(&opts.help, "help", "h", false, "display help message and exit")
	fs.BoolVarP(&opts.version, "version", "V", false, "display version information and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s [-chqV] [[-f] sudoers]\n\nOptions:\n", prog)
		fs.PrintDefaults()
	}
	return fs
}

// run executes one invocation and returns the process exit status.
func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet(&opts, stderr)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", prog, err)
		fs.Usage()
		return 1
	}

	if opts.help {
		fs.SetOutput(stdout)
		fs.Usage()
		return 0
	}
	if opts.version {
		fmt.Fprintf(stdout, "%s version %s\n", prog, version.Version)
		return 0
	}

	// Positional form: visudo [sudoers]
	switch {
	case fs.NArg() > 1, opts.file != "" && fs.NArg() == 1:
		fmt.Fprintf(stderr, "%s: too many arguments\n", prog)
		fs.Usage()
		return 1
	case fs.NArg() == 1:
		opts.file = fs.Arg(0)
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", prog, err)
		return 1
	}

	log := logger.New(stderr, opts.debug || cfg.Debug).With("command", prog)

	s := &session.Session{
		Prog:       prog,
		PolicyPath: config.ResolveSudoersPath(opts.file, cfg.SudoersPath),
		Owner:      cfg.Owner(),
		Validate:   sudoers.Validate,
		Stderr:     stderr,
		Logger:     log,
	}

	if opts.check {
		return s.Check(stdout, opts.file == "", opts.quiet)
	}

	s.Editor = editor.Resolve(cfg)
	s.Prompter = prompterFor(stdin, stderr)
	log.Debug("editor resolved", "editor", s.Editor.String(), "source", s.Editor.Source)

	res := s.Run(ctx)
	log.Debug("session finished", "outcome", res.Outcome.String())
	return res.ExitCode()
}

func prompterFor(stdin *os.File, stderr io.Writer) recovery.Prompter {
	if f, ok := stderr.(*os.File); ok {
		return recovery.ForTerminal(stdin, f)
	}
	return recovery.NewLinePrompter(stdin, stderr)
}
