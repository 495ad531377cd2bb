package agent

import (
	"encoding/json"
	"strings"

	"github.com/tOgg1/armada/internal/models"
)

// claudeStreamEvent is one NDJSON line of claude's stream-json output.
type claudeStreamEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`

	// progress events (emitted by task-tracking wrapper hooks)
	Percent   *int `json:"percent,omitempty"`
	Completed *int `json:"completed,omitempty"`
	Total     *int `json:"total,omitempty"`

	// assistant events
	Message *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message,omitempty"`

	// result events
	Result string `json:"result,omitempty"`
}

// claudeCodeAdapter launches the claude CLI in non-interactive
// stream-json mode and maps its NDJSON events:
//
//   - {"type":"assistant","message":{...}}  -> assistant message
//   - {"type":"progress","percent":..,"completed":..,"total":..} -> progress
//   - {"type":"result","result":"..."}      -> final assistant message
//
// Unparseable lines produce no event.
type claudeCodeAdapter struct{}

// NewClaudeCodeAdapter creates the claude-code adapter.
func NewClaudeCodeAdapter() Adapter {
	return &claudeCodeAdapter{}
}

// Name returns the agent type name.
func (a *claudeCodeAdapter) Name() string {
	return TypeClaudeCode
}

// Command returns the executable and arguments to launch the agent.
func (a *claudeCodeAdapter) Command(prompt string, profile *Profile) (string, []string) {
	command := "claude"
	args := []string{
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}
	if profile != nil {
		if profile.Command != "" {
			command = profile.Command
		}
		args = append(args, profile.ExtraArgs...)
	}
	return command, args
}

// ParseLine maps one stream-json line to an event.
func (a *claudeCodeAdapter) ParseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if len(line) < 2 || !strings.HasPrefix(line, "{") {
		return Event{}, false
	}

	var event claudeStreamEvent
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return Event{}, false
	}

	switch event.Type {
	case "progress":
		out := Event{Type: EventProgress}
		if event.Percent != nil {
			out.Percent = *event.Percent
		}
		if event.Completed != nil {
			out.Completed = *event.Completed
		}
		if event.Total != nil {
			out.Total = *event.Total
		}
		return out, true

	case "assistant":
		if event.Message == nil {
			return Event{}, false
		}
		var parts []string
		for _, block := range event.Message.Content {
			if block.Type == "text" && block.Text != "" {
				parts = append(parts, block.Text)
			}
		}
		if len(parts) == 0 {
			return Event{}, false
		}
		return Event{
			Type:    EventMessage,
			Role:    models.MessageRoleAssistant,
			Content: strings.Join(parts, "\n"),
		}, true

	case "result":
		if event.Result == "" {
			return Event{}, false
		}
		return Event{
			Type:    EventMessage,
			Role:    models.MessageRoleAssistant,
			Content: event.Result,
		}, true

	default:
		return Event{}, false
	}
}
