package agent

import (
	"encoding/json"
	"strings"

	"github.com/tOgg1/armada/internal/models"
)

// codexStreamEvent is one NDJSON line of codex exec --json output.
type codexStreamEvent struct {
	Msg struct {
		Type    string `json:"type"`
		Message string `json:"message,omitempty"`

		Completed *int `json:"completed,omitempty"`
		Total     *int `json:"total,omitempty"`
	} `json:"msg"`
}

// codexAdapter launches the codex CLI in exec mode and maps its NDJSON
// events:
//
//   - {"msg":{"type":"agent_message","message":"..."}}           -> assistant message
//   - {"msg":{"type":"task_progress","completed":..,"total":..}} -> progress
//
// Percent is derived from the counters. Unparseable lines produce no
// event.
type codexAdapter struct{}

// NewCodexAdapter creates the codex adapter.
func NewCodexAdapter() Adapter {
	return &codexAdapter{}
}

// Name returns the agent type name.
func (a *codexAdapter) Name() string {
	return TypeCodex
}

// Command returns the executable and arguments to launch the agent.
func (a *codexAdapter) Command(prompt string, profile *Profile) (string, []string) {
	command := "codex"
	args := []string{
		"exec",
		"--json",
		"--skip-git-repo-check",
		prompt,
	}
	if profile != nil {
		if profile.Command != "" {
			command = profile.Command
		}
		args = append(args, profile.ExtraArgs...)
	}
	return command, args
}

// ParseLine maps one codex NDJSON line to an event.
func (a *codexAdapter) ParseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if len(line) < 2 || !strings.HasPrefix(line, "{") {
		return Event{}, false
	}

	var event codexStreamEvent
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return Event{}, false
	}

	switch event.Msg.Type {
	case "agent_message":
		if event.Msg.Message == "" {
			return Event{}, false
		}
		return Event{
			Type:    EventMessage,
			Role:    models.MessageRoleAssistant,
			Content: event.Msg.Message,
		}, true

	case "task_progress":
		if event.Msg.Total == nil || *event.Msg.Total <= 0 {
			return Event{}, false
		}
		completed := 0
		if event.Msg.Completed != nil {
			completed = *event.Msg.Completed
		}
		total := *event.Msg.Total
		if completed > total {
			completed = total
		}
		return Event{
			Type:      EventProgress,
			Percent:   completed * 100 / total,
			Completed: completed,
			Total:     total,
		}, true

	default:
		return Event{}, false
	}
}
