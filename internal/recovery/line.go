package recovery

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
)

// Options is printed when the answer is not recognised.
const Options = `Options are:
  (e)dit sudoers file again
  e(x)it without saving changes to sudoers file
  (Q)uit and save changes to sudoers file (DANGER!)
`

// LinePrompter reads one answer per line from In and writes the prompt to Out.
type LinePrompter struct {
	in      *bufio.Reader
	out     io.Writer
	pending chan lineResult // read in flight, nil when idle
}

type lineResult struct {
	line string
	err  error
}

// NewLinePrompter wraps in and out. in is buffered once and reused across
// prompts so that read-ahead is never lost between re-edit rounds.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

// Choose prompts until a recognised answer arrives, input ends, or ctx is
// cancelled. A cancelled read resolves to ActionDiscard with ctx.Err().
func (p *LinePrompter) Choose(ctx context.Context) (Action, error) {
	m := NewMachine()
	for {
		if err := ctx.Err(); err != nil {
			return m.EOF(), err
		}
		fmt.Fprint(p.out, "What now? ")

		line, err := p.readLine(ctx)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			fmt.Fprintln(p.out)
			return m.EOF(), err
		}
		if line != "" {
			if action, ok := m.Feed(line); ok {
				return action, nil
			}
		}
		if err != nil {
			fmt.Fprintln(p.out)
			if errors.Is(err, io.EOF) {
				return m.EOF(), nil
			}
			return m.EOF(), err
		}
		fmt.Fprint(p.out, Options)
	}
}

// readLine waits for the next line or ctx. A read abandoned by
// cancellation stays pending and its line is handed to the next call.
func (p *LinePrompter) readLine(ctx context.Context) (string, error) {
	if p.pending == nil {
		ch := make(chan lineResult, 1)
		go func() {
			line, err := p.in.ReadString('\n')
			ch <- lineResult{line: line, err: err}
		}()
		p.pending = ch
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-p.pending:
		p.pending = nil
		return r.line, r.err
	}
}
