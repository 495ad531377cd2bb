// Package tools exposes task orchestration as a JSON-in/JSON-out
// operation surface for tool-calling clients. Errors never cross the
// boundary as Go errors; they are mapped to structured payloads with a
// stable code taxonomy.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tOgg1/armada/internal/agent"
	"github.com/tOgg1/armada/internal/db"
	"github.com/tOgg1/armada/internal/logging"
	"github.com/tOgg1/armada/internal/models"
	"github.com/tOgg1/armada/internal/skills"
	"github.com/tOgg1/armada/internal/task"
	"github.com/tOgg1/armada/internal/worktree"
)

// Supported operations.
const (
	OpListTasks        = "list_tasks"
	OpGetTask          = "get_task"
	OpCreateTask       = "create_task"
	OpStartTask        = "start_task"
	OpCancelTask       = "cancel_task"
	OpAddOrUpdateSkill = "add_or_update_skill"
)

// ErrorCode classifies an operation failure.
type ErrorCode string

const (
	CodeValidation   ErrorCode = "validation"
	CodeNotFound     ErrorCode = "not_found"
	CodeInvalidState ErrorCode = "invalid_state"
	CodeGit          ErrorCode = "git"
	CodeAgentProcess ErrorCode = "agent_process"
	CodeTimeout      ErrorCode = "timeout"
	CodeInternal     ErrorCode = "internal"
)

// Request is one tool invocation.
type Request struct {
	Operation string          `json:"operation"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is the structured error form of a failed operation.
type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Response is the result of one tool invocation. Exactly one of Result
// and Error is set.
type Response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

// Handler dispatches tool requests onto the task service.
type Handler struct {
	service *task.Service
	skills  *skills.Catalog
	logger  zerolog.Logger
}

// NewHandler creates a tool handler.
func NewHandler(service *task.Service, catalog *skills.Catalog) *Handler {
	return &Handler{
		service: service,
		skills:  catalog,
		logger:  logging.Component("tools"),
	}
}

type createTaskPayload struct {
	Prompt         string `json:"prompt"`
	Name           string `json:"name,omitempty"`
	SkillID        string `json:"skill_id,omitempty"`
	AgentProfileID string `json:"agent_profile_id,omitempty"`
	BaseBranch     string `json:"base_branch,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	RetainWorktree bool   `json:"retain_worktree,omitempty"`
}

type runIDPayload struct {
	ID string `json:"id"`
}

type startTaskPayload struct {
	ID        string `json:"id"`
	AgentType string `json:"agent_type,omitempty"`
}

type skillPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// Handle dispatches one request. Unknown operations are rejected with a
// validation error payload.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	var (
		result any
		err    error
	)

	switch req.Operation {
	case OpListTasks:
		result, err = h.service.GetAllTasks(ctx)

	case OpGetTask:
		var payload runIDPayload
		if err = h.decode(req.Payload, &payload); err == nil {
			result, err = h.service.GetTask(ctx, payload.ID)
		}

	case OpCreateTask:
		var payload createTaskPayload
		if err = h.decode(req.Payload, &payload); err == nil {
			result, err = h.service.CreateTask(ctx, task.CreateTaskParams{
				Prompt:         payload.Prompt,
				Name:           payload.Name,
				SkillID:        payload.SkillID,
				AgentProfileID: payload.AgentProfileID,
				BaseBranch:     payload.BaseBranch,
				ConversationID: payload.ConversationID,
				RetainWorktree: payload.RetainWorktree,
			})
		}

	case OpStartTask:
		var payload startTaskPayload
		if err = h.decode(req.Payload, &payload); err == nil {
			result, err = h.service.StartTask(ctx, payload.ID, payload.AgentType)
		}

	case OpCancelTask:
		var payload runIDPayload
		if err = h.decode(req.Payload, &payload); err == nil {
			if err = h.service.Cancel(ctx, payload.ID); err == nil {
				result = map[string]string{"id": payload.ID, "status": "cancelling"}
			}
		}

	case OpAddOrUpdateSkill:
		var payload skillPayload
		if err = h.decode(req.Payload, &payload); err == nil {
			result, err = h.skills.AddOrUpdate(payload.ID, payload.Name, payload.Content, payload.Source)
		}

	default:
		return errorResponse(CodeValidation, fmt.Sprintf("unknown operation %q", req.Operation))
	}

	if err != nil {
		h.logger.Debug().
			Err(err).
			Str("operation", req.Operation).
			Msg("tool operation failed")
		return classify(err)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return errorResponse(CodeInternal, "failed to encode result: "+err.Error())
	}
	return Response{OK: true, Result: encoded}
}

// decodeError marks payload decoding failures for classification.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string {
	return "invalid payload: " + e.err.Error()
}

func (h *Handler) decode(payload json.RawMessage, into any) error {
	if len(payload) == 0 {
		return &decodeError{err: errors.New("payload is required")}
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

// classify maps a Go error to the boundary error taxonomy.
func classify(err error) Response {
	var (
		decodeErr  *decodeError
		stateErr   *task.InvalidStateError
		gitErr     *worktree.GitError
		timeoutErr *agent.TimeoutError
		processErr *agent.ProcessError
	)

	switch {
	case errors.As(err, &decodeErr), models.IsValidation(err):
		return errorResponse(CodeValidation, err.Error())
	case errors.Is(err, db.ErrRunNotFound),
		errors.Is(err, skills.ErrSkillNotFound),
		errors.Is(err, agent.ErrProfileNotFound):
		return errorResponse(CodeNotFound, err.Error())
	case errors.As(err, &stateErr), errors.Is(err, db.ErrRunTerminal):
		return errorResponse(CodeInvalidState, err.Error())
	case errors.As(err, &gitErr):
		return errorResponse(CodeGit, err.Error())
	case errors.As(err, &timeoutErr):
		return errorResponse(CodeTimeout, err.Error())
	case errors.As(err, &processErr), errors.Is(err, agent.ErrUnknownAgentType):
		return errorResponse(CodeAgentProcess, err.Error())
	default:
		return errorResponse(CodeInternal, err.Error())
	}
}

func errorResponse(code ErrorCode, message string) Response {
	return Response{Error: &ErrorPayload{Code: code, Message: message}}
}
