// Package recovery implements the "what now?" prompt offered when edited
// policy content fails validation.
//
// The decision logic is a small state machine fed one token at a time.
// Front-ends (a line reader for pipes, a bubbletea program for terminals)
// only translate their input into tokens and report end of input.
package recovery

import (
	"context"
	"strings"
)

// Action is the user's decision after a failed validation.
type Action int

const (
	ActionNone      Action = iota // no decision yet
	ActionReEdit                  // run the editor again on the same temp copy
	ActionDiscard                 // drop the edits, leave the policy file untouched
	ActionForceSave               // install the content without validation
)

func (a Action) String() string {
	switch a {
	case ActionReEdit:
		return "re-edit"
	case ActionDiscard:
		return "discard"
	case ActionForceSave:
		return "force-save"
	default:
		return "none"
	}
}

// State is the machine's position.
type State int

const (
	StateAwaitChoice State = iota
	StateDone
)

// Tokens recognised by Feed.
const (
	TokenEdit = "e"
	TokenExit = "x"
	TokenSave = "Q"
)

// Machine maps input tokens to an Action.
type Machine struct {
	state  State
	action Action
}

// NewMachine returns a machine awaiting a choice.
func NewMachine() *Machine {
	return &Machine{state: StateAwaitChoice}
}

// Feed consumes one token. It reports the decided action and true once a
// recognised token arrives; unrecognised input leaves the machine waiting.
// Tokens fed after a decision are ignored.
func (m *Machine) Feed(token string) (Action, bool) {
	if m.state == StateDone {
		return m.action, true
	}
	switch strings.TrimSpace(token) {
	case TokenEdit:
		m.decide(ActionReEdit)
	case TokenExit:
		m.decide(ActionDiscard)
	case TokenSave:
		m.decide(ActionForceSave)
	default:
		return ActionNone, false
	}
	return m.action, true
}

// EOF signals that no more input will arrive. Undecided machines resolve
// to ActionDiscard.
func (m *Machine) EOF() Action {
	if m.state != StateDone {
		m.decide(ActionDiscard)
	}
	return m.action
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Action returns the decided action, or ActionNone while waiting.
func (m *Machine) Action() Action {
	return m.action
}

func (m *Machine) decide(a Action) {
	m.action = a
	m.state = StateDone
}

// Prompter asks the user what to do after a validation failure.
type Prompter interface {
	Choose(ctx context.Context) (Action, error)
}
