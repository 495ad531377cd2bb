package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tOgg1/armada/internal/agent"
	"github.com/tOgg1/armada/internal/db"
	"github.com/tOgg1/armada/internal/hooks"
	"github.com/tOgg1/armada/internal/models"
	"github.com/tOgg1/armada/internal/skills"
	"github.com/tOgg1/armada/internal/worktree"
)

// runLifecycle drives a run through its phases. It owns all state
// transitions after the initial queued->running one. Persistence uses
// a background context so cancellation of the run never loses a write.
func (s *Service) runLifecycle(ctx context.Context, run *models.Run, adapter agent.Adapter, profile *agent.Profile, startedAt time.Time) {
	storeCtx := context.Background()

	// Phase: worktree_creation (persisted by StartTask).
	wt, err := s.worktrees.Create(ctx, run.BaseBranch, run.ID)
	if err != nil {
		s.finishFailed(storeCtx, run, nil, startedAt, fmt.Errorf("worktree creation failed: %w", err))
		return
	}
	if _, err := s.runs.Update(storeCtx, run.ID, db.RunUpdate{WorktreePath: &wt.Path}); err != nil {
		s.persistFailure(run.ID, err)
		return
	}
	if s.cancelled(ctx) {
		s.finishCancelled(storeCtx, run, wt, startedAt)
		return
	}

	hookCtx := hooks.RunContext{
		RunID:        run.ID,
		WorktreePath: wt.Path,
		Branch:       wt.Branch,
	}

	// Phase: setup_hooks.
	if s.setPhase(storeCtx, run.ID, models.RunPhaseSetupHooks) != nil {
		return
	}
	if err := s.hooks.Run(ctx, hooks.PhaseSetup, s.cfg.Hooks.Setup, hookCtx); err != nil {
		if s.cancelled(ctx) {
			s.finishCancelled(storeCtx, run, wt, startedAt)
			return
		}
		s.finishFailed(storeCtx, run, wt, startedAt, err)
		return
	}
	if s.cancelled(ctx) {
		s.finishCancelled(storeCtx, run, wt, startedAt)
		return
	}

	// Phase: agent_execution.
	if s.setPhase(storeCtx, run.ID, models.RunPhaseAgentExecution) != nil {
		return
	}
	exitCode, agentErr := s.executeAgent(ctx, storeCtx, run, adapter, profile, wt)
	if s.cancelled(ctx) {
		s.runCleanupHooks(storeCtx, run, hookCtx)
		s.finishCancelled(storeCtx, run, wt, startedAt)
		return
	}
	if agentErr != nil {
		s.finishFailed(storeCtx, run, wt, startedAt, agentErr)
		return
	}
	if exitCode != 0 {
		s.finishFailed(storeCtx, run, wt, startedAt,
			fmt.Errorf("agent process exited with code %d", exitCode))
		return
	}

	// Phase: cleanup_hooks.
	if s.setPhase(storeCtx, run.ID, models.RunPhaseCleanupHooks) != nil {
		return
	}
	if err := s.hooks.Run(ctx, hooks.PhaseCleanup, s.cfg.Hooks.Cleanup, hookCtx); err != nil {
		if s.cancelled(ctx) {
			s.finishCancelled(storeCtx, run, wt, startedAt)
			return
		}
		s.finishFailed(storeCtx, run, wt, startedAt, err)
		return
	}
	if s.cancelled(ctx) {
		s.finishCancelled(storeCtx, run, wt, startedAt)
		return
	}

	// Phase: finalization.
	if s.setPhase(storeCtx, run.ID, models.RunPhaseFinalization) != nil {
		return
	}
	s.removeWorktree(storeCtx, run, wt)

	now := time.Now().UTC()
	if _, err := s.runs.Finish(storeCtx, run.ID, models.RunStatusCompleted, now, now.Sub(startedAt).Milliseconds()); err != nil {
		s.persistFailure(run.ID, err)
		return
	}
	s.logger.Info().
		Str("run_id", run.ID).
		Dur("duration", now.Sub(startedAt)).
		Msg("run completed")
}

// executeAgent injects the skill where applicable, persists the user
// message, spawns the agent and consumes its event stream. It returns
// the process exit code, or an error for spawn failures and timeouts.
func (s *Service) executeAgent(ctx context.Context, storeCtx context.Context, run *models.Run, adapter agent.Adapter, profile *agent.Profile, wt *worktree.Worktree) (int, error) {
	prompt := run.Prompt
	count, err := s.messages.CountByRun(storeCtx, run.ID)
	if err != nil {
		s.persistFailure(run.ID, err)
		return 0, err
	}
	if run.SkillID != "" && count == 0 {
		skill, err := s.skills.Get(run.SkillID)
		switch {
		case err == nil:
			prompt = skills.Inject(prompt, skill)
		case errors.Is(err, skills.ErrSkillNotFound):
			s.logger.Warn().
				Str("run_id", run.ID).
				Str("skill_id", run.SkillID).
				Msg("skill not found, running without persona")
		default:
			return 0, err
		}
	}

	if err := s.persistMessage(storeCtx, run.ID, models.MessageRoleUser, prompt); err != nil {
		return 0, err
	}

	handle, err := s.runner.Run(ctx, adapter, wt.Path, prompt, profile)
	if err != nil {
		return 0, err
	}

	// abort tears the process down and drains the stream so the
	// reader goroutine can exit.
	abort := func() {
		handle.Cancel()
		for range handle.Events() {
		}
	}

	exitCode := 0
	cancelRequested := false
	for event := range handle.Events() {
		if !cancelRequested && ctx.Err() != nil {
			handle.Cancel()
			cancelRequested = true
		}

		switch event.Type {
		case agent.EventProgress:
			if err := s.recordProgress(storeCtx, run.ID, event); err != nil {
				abort()
				return 0, err
			}
		case agent.EventMessage:
			if err := s.persistMessage(storeCtx, run.ID, event.Role, event.Content); err != nil {
				abort()
				return 0, err
			}
		case agent.EventExit:
			exitCode = event.ExitCode
		}
	}

	if err := handle.Err(); err != nil {
		return exitCode, err
	}
	return exitCode, nil
}

// recordProgress clamps and persists one progress event.
func (s *Service) recordProgress(ctx context.Context, runID string, event agent.Event) error {
	percent := event.Percent
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	total := event.Total
	if total < 0 {
		total = 0
	}
	completed := event.Completed
	if completed < 0 {
		completed = 0
	}
	if completed > total {
		completed = total
	}

	update := db.RunUpdate{ProgressPercent: &percent}
	if total > 0 {
		update.TotalSubtasks = &total
		update.CompletedSubtasks = &completed
	}
	if _, err := s.runs.Update(ctx, runID, update); err != nil {
		s.persistFailure(runID, err)
		return err
	}
	return nil
}

func (s *Service) persistMessage(ctx context.Context, runID string, role models.MessageRole, content string) error {
	message := &models.Message{
		RunID:   runID,
		Role:    role,
		Content: content,
	}
	if err := s.messages.Create(ctx, message); err != nil {
		s.persistFailure(runID, err)
		return err
	}
	return nil
}

// finishFailed records the failure reason as a final assistant message,
// removes the worktree unless retained, and persists the terminal
// failed status.
func (s *Service) finishFailed(ctx context.Context, run *models.Run, wt *worktree.Worktree, startedAt time.Time, cause error) {
	s.logger.Error().
		Err(cause).
		Str("run_id", run.ID).
		Msg("run failed")

	if err := s.messages.Create(ctx, &models.Message{
		RunID:   run.ID,
		Role:    models.MessageRoleAssistant,
		Content: "Run failed: " + cause.Error(),
	}); err != nil {
		s.persistFailure(run.ID, err)
		return
	}

	s.removeWorktree(ctx, run, wt)

	now := time.Now().UTC()
	if _, err := s.runs.Finish(ctx, run.ID, models.RunStatusFailed, now, now.Sub(startedAt).Milliseconds()); err != nil {
		s.persistFailure(run.ID, err)
	}
}

// finishCancelled cleans up and persists the terminal cancelled status.
func (s *Service) finishCancelled(ctx context.Context, run *models.Run, wt *worktree.Worktree, startedAt time.Time) {
	s.logger.Info().Str("run_id", run.ID).Msg("run cancelled")

	if err := s.messages.Create(ctx, &models.Message{
		RunID:   run.ID,
		Role:    models.MessageRoleAssistant,
		Content: "Run cancelled.",
	}); err != nil {
		s.persistFailure(run.ID, err)
		return
	}

	s.removeWorktree(ctx, run, wt)

	now := time.Now().UTC()
	if _, err := s.runs.Finish(ctx, run.ID, models.RunStatusCancelled, now, now.Sub(startedAt).Milliseconds()); err != nil {
		s.persistFailure(run.ID, err)
	}
}

// runCleanupHooks runs cleanup hooks on the cancellation path. Failures
// are logged, not escalated: the run is already being torn down.
func (s *Service) runCleanupHooks(ctx context.Context, run *models.Run, hookCtx hooks.RunContext) {
	if err := s.hooks.Run(ctx, hooks.PhaseCleanup, s.cfg.Hooks.Cleanup, hookCtx); err != nil {
		s.logger.Warn().
			Err(err).
			Str("run_id", run.ID).
			Msg("cleanup hooks failed during cancellation")
	}
}

// removeWorktree removes the run's worktree unless retention was
// requested. Removal failures are logged, never escalated; the branch
// is kept either way so the run's work stays recoverable.
func (s *Service) removeWorktree(ctx context.Context, run *models.Run, wt *worktree.Worktree) {
	if wt == nil || run.RetainWorktree {
		return
	}
	if err := s.worktrees.Remove(ctx, wt.Path); err != nil {
		s.logger.Warn().
			Err(err).
			Str("run_id", run.ID).
			Str("worktree", wt.Path).
			Msg("failed to remove worktree")
		return
	}
	empty := ""
	if _, err := s.runs.Update(ctx, run.ID, db.RunUpdate{WorktreePath: &empty}); err != nil {
		s.persistFailure(run.ID, err)
	}
}

func (s *Service) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}
