package recovery

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Cached style objects
var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).
			Bold(true)

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Bold(true)

	descStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	dangerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)

type keyMap struct {
	Edit  key.Binding
	Exit  key.Binding
	Save  key.Binding
	Abort key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Edit: key.NewBinding(
			key.WithKeys(TokenEdit),
			key.WithHelp(TokenEdit, "edit sudoers file again"),
		),
		Exit: key.NewBinding(
			key.WithKeys(TokenExit),
			key.WithHelp(TokenExit, "exit without saving changes"),
		),
		Save: key.NewBinding(
			key.WithKeys(TokenSave),
			key.WithHelp(TokenSave, "quit and save changes anyway (DANGER!)"),
		),
		Abort: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+d", "esc"),
		),
	}
}

// Model is the bubbletea front-end for Machine.
type Model struct {
	machine  *Machine
	keys     keyMap
	unknown  string
	quitting bool
}

// NewModel returns a model awaiting a choice.
func NewModel() Model {
	return Model{machine: NewMachine(), keys: defaultKeyMap()}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Abort):
		m.machine.EOF()
	case key.Matches(keyMsg, m.keys.Edit, m.keys.Exit, m.keys.Save):
		m.machine.Feed(keyMsg.String())
	default:
		m.unknown = keyMsg.String()
		return m, nil
	}
	m.quitting = true
	return m, tea.Quit
}

// View renders the prompt.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(promptStyle.Render("What now?"))
	b.WriteString("\n")
	for _, binding := range []key.Binding{m.keys.Edit, m.keys.Exit, m.keys.Save} {
		help := binding.Help()
		desc := descStyle.Render(help.Desc)
		if binding.Help().Key == TokenSave {
			desc = dangerStyle.Render(help.Desc)
		}
		b.WriteString(fmt.Sprintf("  %s  %s\n", keyStyle.Render(help.Key), desc))
	}
	if m.unknown != "" {
		b.WriteString(descStyle.Render(fmt.Sprintf("unrecognised choice %q", m.unknown)))
		b.WriteString("\n")
	}
	return b.String()
}

// Action returns the decision; ActionNone until a choice is made.
func (m Model) Action() Action {
	return m.machine.Action()
}

// TUIPrompter runs Model on a terminal.
type TUIPrompter struct {
	in  io.Reader
	out io.Writer
}

// NewTUIPrompter returns a prompter drawing on out and reading keys from in.
func NewTUIPrompter(in io.Reader, out io.Writer) *TUIPrompter {
	return &TUIPrompter{in: in, out: out}
}

// Choose runs the program until a choice is made. Any failure to run the
// program resolves to ActionDiscard.
func (p *TUIPrompter) Choose(ctx context.Context) (Action, error) {
	prog := tea.NewProgram(NewModel(),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
		tea.WithContext(ctx),
	)
	final, err := prog.Run()
	if err != nil {
		return ActionDiscard, fmt.Errorf("prompt: %w", err)
	}
	m, ok := final.(Model)
	if !ok || m.Action() == ActionNone {
		return ActionDiscard, nil
	}
	return m.Action(), nil
}

// ForTerminal picks the TUI prompter when both in and out are terminals and
// the line prompter otherwise.
func ForTerminal(in, out *os.File) Prompter {
	if term.IsTerminal(int(in.Fd())) && term.IsTerminal(int(out.Fd())) {
		return NewTUIPrompter(in, out)
	}
	return NewLinePrompter(in, out)
}
