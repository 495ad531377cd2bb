package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tOgg1/armada/internal/models"
)

// Run repository errors.
var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunTerminal = errors.New("run is in a terminal status")
)

// RunRepository handles run persistence.
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, name, status, phase, ready_to_act,
	prompt, skill_id, agent_profile_id, base_branch, conversation_id,
	worktree_path, retain_worktree,
	progress_percent, total_subtasks, completed_subtasks,
	created_at, updated_at, completed_at, duration_ms`

// Create adds a new run. It assigns an id and timestamps and defaults
// the status to queued.
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = models.DefaultRunStatus()
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	if err := run.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, name, status, phase, ready_to_act,
			prompt, skill_id, agent_profile_id, base_branch, conversation_id,
			worktree_path, retain_worktree,
			progress_percent, total_subtasks, completed_subtasks,
			created_at, updated_at, completed_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Name,
		string(run.Status),
		string(run.Phase),
		boolToInt(run.ReadyToAct),
		run.Prompt,
		run.SkillID,
		run.AgentProfileID,
		run.BaseBranch,
		run.ConversationID,
		run.WorktreePath,
		boolToInt(run.RetainWorktree),
		run.ProgressPercent,
		run.TotalSubtasks,
		run.CompletedSubtasks,
		run.CreatedAt.Format(time.RFC3339),
		run.UpdatedAt.Format(time.RFC3339),
		stringTimePtr(run.CompletedAt),
		run.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return r.scanRun(row)
}

// List retrieves all runs ordered by creation time.
func (r *RunRepository) List(ctx context.Context) ([]*models.Run, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*models.Run, 0)
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// RunUpdate describes a partial run update. Nil fields are left
// untouched; supplied fields are applied atomically in one statement.
type RunUpdate struct {
	Name              *string
	Status            *models.RunStatus
	Phase             *models.RunPhase
	ReadyToAct        *bool
	WorktreePath      *string
	RetainWorktree    *bool
	ProgressPercent   *int
	TotalSubtasks     *int
	CompletedSubtasks *int
	CompletedAt       *time.Time
	DurationMs        *int64
}

// Update merges the supplied fields into the run and bumps updated_at.
// It returns the merged record, or ErrRunNotFound for an unknown id.
func (r *RunRepository) Update(ctx context.Context, id string, update RunUpdate) (*models.Run, error) {
	set := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339)}

	appendField := func(column string, value any) {
		set = append(set, column+" = ?")
		args = append(args, value)
	}

	if update.Name != nil {
		appendField("name", *update.Name)
	}
	if update.Status != nil {
		appendField("status", string(*update.Status))
	}
	if update.Phase != nil {
		appendField("phase", string(*update.Phase))
	}
	if update.ReadyToAct != nil {
		appendField("ready_to_act", boolToInt(*update.ReadyToAct))
	}
	if update.WorktreePath != nil {
		appendField("worktree_path", *update.WorktreePath)
	}
	if update.RetainWorktree != nil {
		appendField("retain_worktree", boolToInt(*update.RetainWorktree))
	}
	if update.ProgressPercent != nil {
		appendField("progress_percent", *update.ProgressPercent)
	}
	if update.TotalSubtasks != nil {
		appendField("total_subtasks", *update.TotalSubtasks)
	}
	if update.CompletedSubtasks != nil {
		appendField("completed_subtasks", *update.CompletedSubtasks)
	}
	if update.CompletedAt != nil {
		appendField("completed_at", update.CompletedAt.UTC().Format(time.RFC3339))
	}
	if update.DurationMs != nil {
		appendField("duration_ms", *update.DurationMs)
	}

	args = append(args, id)
	result, err := r.db.ExecContext(ctx,
		"UPDATE runs SET "+strings.Join(set, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update run: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrRunNotFound
	}

	return r.Get(ctx, id)
}

// Finish moves a run into a terminal status and stamps completed_at and
// duration_ms. The guard in the WHERE clause makes the terminal
// transition write-once: finishing an already-terminal run returns
// ErrRunTerminal and leaves the row untouched.
func (r *RunRepository) Finish(ctx context.Context, id string, status models.RunStatus, completedAt time.Time, durationMs int64) (*models.Run, error) {
	switch status {
	case models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusCancelled:
	default:
		return nil, fmt.Errorf("finish requires a terminal status, got %q", status)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, completed_at = ?, duration_ms = ?, updated_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed', 'cancelled')
	`,
		string(status),
		completedAt.UTC().Format(time.RFC3339),
		durationMs,
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to finish run: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrRunTerminal
	}

	return r.Get(ctx, id)
}

func (r *RunRepository) scanRun(scanner interface{ Scan(...any) error }) (*models.Run, error) {
	var (
		id                string
		name              string
		status            string
		phase             string
		readyToAct        int
		prompt            string
		skillID           string
		agentProfileID    string
		baseBranch        string
		conversationID    string
		worktreePath      string
		retainWorktree    int
		progressPercent   int
		totalSubtasks     int
		completedSubtasks int
		createdAt         string
		updatedAt         string
		completedAt       sql.NullString
		durationMs        sql.NullInt64
	)

	if err := scanner.Scan(
		&id,
		&name,
		&status,
		&phase,
		&readyToAct,
		&prompt,
		&skillID,
		&agentProfileID,
		&baseBranch,
		&conversationID,
		&worktreePath,
		&retainWorktree,
		&progressPercent,
		&totalSubtasks,
		&completedSubtasks,
		&createdAt,
		&updatedAt,
		&completedAt,
		&durationMs,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run := &models.Run{
		ID:                id,
		Name:              name,
		Status:            models.RunStatus(status),
		Phase:             models.RunPhase(phase),
		ReadyToAct:        readyToAct == 1,
		Prompt:            prompt,
		SkillID:           skillID,
		AgentProfileID:    agentProfileID,
		BaseBranch:        baseBranch,
		ConversationID:    conversationID,
		WorktreePath:      worktreePath,
		RetainWorktree:    retainWorktree == 1,
		ProgressPercent:   progressPercent,
		TotalSubtasks:     totalSubtasks,
		CompletedSubtasks: completedSubtasks,
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		run.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		run.UpdatedAt = t
	}
	if completedAt.Valid && completedAt.String != "" {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			run.CompletedAt = &t
		}
	}
	if durationMs.Valid {
		ms := durationMs.Int64
		run.DurationMs = &ms
	}

	return run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func stringTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	value := t.UTC().Format(time.RFC3339)
	return &value
}
