package models

import (
	"time"
)

// RunStatus represents the lifecycle status of a run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunPhase represents the lifecycle phase of a running run. Phase only
// has meaning while the run is running; terminal runs keep the last
// phase they reached.
type RunPhase string

const (
	RunPhaseWorktreeCreation RunPhase = "worktree_creation"
	RunPhaseSetupHooks       RunPhase = "setup_hooks"
	RunPhaseAgentExecution   RunPhase = "agent_execution"
	RunPhaseCleanupHooks     RunPhase = "cleanup_hooks"
	RunPhaseFinalization     RunPhase = "finalization"
)

// PhaseOrder is the fixed forward sequence of lifecycle phases.
var PhaseOrder = []RunPhase{
	RunPhaseWorktreeCreation,
	RunPhaseSetupHooks,
	RunPhaseAgentExecution,
	RunPhaseCleanupHooks,
	RunPhaseFinalization,
}

// PhaseIndex returns the position of a phase in the lifecycle sequence,
// or -1 for an unknown or empty phase.
func PhaseIndex(phase RunPhase) int {
	for i, p := range PhaseOrder {
		if p == phase {
			return i
		}
	}
	return -1
}

// Run represents one agent task tracked from creation to completion.
type Run struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	Status     RunStatus `json:"status"`
	Phase      RunPhase  `json:"phase,omitempty"`
	ReadyToAct bool      `json:"ready_to_act"`

	Prompt         string `json:"prompt"`
	SkillID        string `json:"skill_id,omitempty"`
	AgentProfileID string `json:"agent_profile_id,omitempty"`
	BaseBranch     string `json:"base_branch,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`

	WorktreePath   string `json:"worktree_path,omitempty"`
	RetainWorktree bool   `json:"retain_worktree"`

	ProgressPercent   int `json:"progress_percent"`
	TotalSubtasks     int `json:"total_subtasks"`
	CompletedSubtasks int `json:"completed_subtasks"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  *int64     `json:"duration_ms,omitempty"`
}

// Validate checks if the run is valid.
func (r *Run) Validate() error {
	validation := &ValidationErrors{}
	if r.Prompt == "" {
		validation.Add("prompt", ErrInvalidPrompt)
	}
	if r.ProgressPercent < 0 || r.ProgressPercent > 100 {
		validation.AddMessage("progress_percent", "progress_percent must be between 0 and 100")
	}
	if r.TotalSubtasks < 0 {
		validation.AddMessage("total_subtasks", "total_subtasks must be >= 0")
	}
	if r.CompletedSubtasks < 0 || r.CompletedSubtasks > r.TotalSubtasks {
		validation.AddMessage("completed_subtasks", "completed_subtasks must be between 0 and total_subtasks")
	}
	if validation.Err() != nil {
		return validation.Err()
	}

	switch r.Status {
	case "", RunStatusQueued, RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
	default:
		return ErrInvalidRunStatus
	}

	switch r.Phase {
	case "", RunPhaseWorktreeCreation, RunPhaseSetupHooks, RunPhaseAgentExecution, RunPhaseCleanupHooks, RunPhaseFinalization:
		return nil
	default:
		return ErrInvalidRunPhase
	}
}

// Terminal reports whether the run has reached a terminal status.
func (r *Run) Terminal() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// DefaultRunStatus returns the status assigned to newly created runs.
func DefaultRunStatus() RunStatus {
	return RunStatusQueued
}
