// Package agent runs coding-agent CLIs inside run worktrees and turns
// their output into structured events.
package agent

import (
	"errors"
	"fmt"

	"github.com/tOgg1/armada/internal/models"
)

// Agent types recognized by the adapter registry.
const (
	TypeClaudeCode = "claude-code"
	TypeCodex      = "codex"
)

// ErrUnknownAgentType indicates an unrecognized agent type. It is a
// configuration error surfaced before any process is spawned.
var ErrUnknownAgentType = errors.New("unknown agent type")

// EventType identifies the kind of an agent output event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventMessage  EventType = "message"
	EventExit     EventType = "exit"
)

// Event is one unit of agent output. The field set in use depends on
// Type: progress carries the counters, message carries role and content,
// exit carries the process exit code.
type Event struct {
	Type EventType

	Percent   int
	Completed int
	Total     int

	Role    models.MessageRole
	Content string

	ExitCode int
}

// Adapter describes one supported agent CLI: how to launch it and how
// to map its output lines to events.
type Adapter interface {
	// Name returns the agent type name.
	Name() string

	// Command returns the executable and arguments to launch the agent
	// with the given prompt.
	Command(prompt string, profile *Profile) (string, []string)

	// ParseLine maps one line of agent output to an event. The second
	// return is false for lines that produce no event.
	ParseLine(line string) (Event, bool)
}

// New returns the adapter for the given agent type, or
// ErrUnknownAgentType for types no adapter recognizes.
func New(agentType string) (Adapter, error) {
	switch agentType {
	case TypeClaudeCode:
		return NewClaudeCodeAdapter(), nil
	case TypeCodex:
		return NewCodexAdapter(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgentType, agentType)
	}
}
