// Package task orchestrates run lifecycles: creation, start, the
// phase machine from worktree creation through finalization, and
// cooperative cancellation.
package task

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/armada/internal/agent"
	"github.com/tOgg1/armada/internal/config"
	"github.com/tOgg1/armada/internal/db"
	"github.com/tOgg1/armada/internal/hooks"
	"github.com/tOgg1/armada/internal/logging"
	"github.com/tOgg1/armada/internal/models"
	"github.com/tOgg1/armada/internal/names"
	"github.com/tOgg1/armada/internal/skills"
	"github.com/tOgg1/armada/internal/worktree"
)

// Preference keys consulted for run defaults.
const (
	PrefDefaultBaseBranch   = "default_base_branch"
	PrefDefaultAgentProfile = "default_agent_profile"
)

// worktreeManager is the slice of worktree.Manager the service uses.
type worktreeManager interface {
	Create(ctx context.Context, baseBranch, runID string) (*worktree.Worktree, error)
	Remove(ctx context.Context, path string) error
}

// agentRunner is the slice of agent.Runner the service uses.
type agentRunner interface {
	Run(ctx context.Context, adapter agent.Adapter, worktreePath, prompt string, profile *agent.Profile) (*agent.Handle, error)
}

// activeRun tracks one in-flight lifecycle goroutine.
type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Service owns run lifecycles. All state transitions are persisted
// through the run repository; in-memory state is limited to the cancel
// handles of currently running lifecycles.
type Service struct {
	runs        *db.RunRepository
	messages    *db.MessageRepository
	preferences *db.PreferenceRepository

	worktrees worktreeManager
	runner    agentRunner
	hooks     *hooks.Executor
	skills    *skills.Catalog

	cfg    *config.Config
	logger zerolog.Logger

	// newAdapter resolves an agent type to its adapter.
	newAdapter func(agentType string) (agent.Adapter, error)

	// persistFailure is invoked when the store fails mid-lifecycle,
	// after which the run's durable state can no longer be trusted.
	persistFailure func(runID string, err error)

	mu     sync.Mutex
	active map[string]*activeRun
}

// Option configures a Service.
type Option func(*Service)

// WithAdapterFactory overrides how agent types resolve to adapters.
func WithAdapterFactory(factory func(agentType string) (agent.Adapter, error)) Option {
	return func(s *Service) {
		s.newAdapter = factory
	}
}

// WithWorktreeManager overrides the worktree manager.
func WithWorktreeManager(manager worktreeManager) Option {
	return func(s *Service) {
		s.worktrees = manager
	}
}

// WithRunner overrides the agent process runner.
func WithRunner(runner agentRunner) Option {
	return func(s *Service) {
		s.runner = runner
	}
}

// WithPersistFailureHandler overrides the store-failure handler.
func WithPersistFailureHandler(handler func(runID string, err error)) Option {
	return func(s *Service) {
		s.persistFailure = handler
	}
}

// NewService wires a Service from configuration and an open database.
func NewService(cfg *config.Config, database *db.DB, opts ...Option) *Service {
	logger := logging.Component("task")

	s := &Service{
		runs:        db.NewRunRepository(database),
		messages:    db.NewMessageRepository(database),
		preferences: db.NewPreferenceRepository(database),
		worktrees: worktree.NewManager(
			cfg.Worktrees.RepoPath,
			cfg.Worktrees.Dir,
			cfg.Worktrees.BranchPrefix,
		),
		runner:     agent.NewRunner(cfg.Agents.Timeout, cfg.Agents.GracePeriod),
		hooks:      hooks.NewExecutor(cfg.Hooks.Timeout),
		skills:     skills.NewCatalog(cfg.Skills.GlobalDir, cfg.Skills.LocalDir),
		cfg:        cfg,
		logger:     logger,
		newAdapter: agent.New,
		active:     make(map[string]*activeRun),
	}
	s.persistFailure = func(runID string, err error) {
		s.logger.Fatal().Err(err).Str("run_id", runID).Msg("run store failure mid-lifecycle")
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTaskParams are the caller-supplied fields of a new run.
type CreateTaskParams struct {
	Prompt         string
	Name           string
	SkillID        string
	AgentProfileID string
	BaseBranch     string
	ConversationID string
	RetainWorktree bool
}

// CreateTask validates and persists a new queued run. Unset fields are
// filled from preferences. No worktree or process side effects happen
// until StartTask.
func (s *Service) CreateTask(ctx context.Context, params CreateTaskParams) (*models.Run, error) {
	baseBranch := params.BaseBranch
	if baseBranch == "" {
		var err error
		baseBranch, err = s.preferences.GetDefault(ctx, PrefDefaultBaseBranch, "main")
		if err != nil {
			return nil, err
		}
	}

	profileID := params.AgentProfileID
	if profileID == "" {
		var err error
		profileID, err = s.preferences.GetDefault(ctx, PrefDefaultAgentProfile, "")
		if err != nil {
			return nil, err
		}
	}

	name := params.Name
	if name == "" {
		name = names.RandomRunName(nil)
	}

	run := &models.Run{
		Name:           name,
		Prompt:         params.Prompt,
		SkillID:        params.SkillID,
		AgentProfileID: profileID,
		BaseBranch:     baseBranch,
		ConversationID: params.ConversationID,
		RetainWorktree: params.RetainWorktree,
		Status:         models.RunStatusQueued,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("run_id", run.ID).
		Str("base_branch", run.BaseBranch).
		Msg("created run")
	return run, nil
}

// StartTask transitions a queued run to running and launches its
// lifecycle goroutine. It returns after the transition is persisted;
// the lifecycle continues in the background. agentType overrides the
// profile and configured default when non-empty. A run that is not
// queued, or whose lifecycle is already registered, is rejected with
// InvalidStateError.
func (s *Service) StartTask(ctx context.Context, runID, agentType string) (*models.Run, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(run.Status, models.RunStatusRunning) {
		return nil, &InvalidStateError{RunID: runID, Status: run.Status, Op: "start"}
	}

	// Resolve the adapter before any state transition so an unknown
	// agent type or broken profile fails the call, not the run.
	adapter, profile, err := s.resolveAgent(run, agentType)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	handle := &activeRun{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if _, exists := s.active[runID]; exists {
		s.mu.Unlock()
		cancel()
		return nil, &InvalidStateError{RunID: runID, Status: models.RunStatusRunning, Op: "start"}
	}
	s.active[runID] = handle
	s.mu.Unlock()

	status := models.RunStatusRunning
	phase := models.RunPhaseWorktreeCreation
	updated, err := s.runs.Update(ctx, runID, db.RunUpdate{Status: &status, Phase: &phase})
	if err != nil {
		s.deregister(runID, handle)
		cancel()
		return nil, err
	}

	startedAt := time.Now()
	go func() {
		defer close(handle.done)
		defer s.deregister(runID, handle)
		defer cancel()
		s.runLifecycle(runCtx, updated, adapter, profile, startedAt)
	}()

	s.logger.Info().
		Str("run_id", runID).
		Str("agent", adapter.Name()).
		Msg("started run")
	return updated, nil
}

// Cancel requests cancellation of a run. Running lifecycles are
// cancelled cooperatively; queued runs transition to cancelled
// directly; terminal runs are rejected with InvalidStateError.
func (s *Service) Cancel(ctx context.Context, runID string) error {
	s.mu.Lock()
	handle, running := s.active[runID]
	s.mu.Unlock()
	if running {
		handle.cancel()
		return nil
	}

	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return err
	}
	if !models.CanTransition(run.Status, models.RunStatusCancelled) {
		return &InvalidStateError{RunID: runID, Status: run.Status, Op: "cancel"}
	}

	if err := s.messages.Create(ctx, &models.Message{
		RunID:   runID,
		Role:    models.MessageRoleAssistant,
		Content: "Run cancelled.",
	}); err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := s.runs.Finish(ctx, runID, models.RunStatusCancelled, now, 0); err != nil {
		return err
	}
	s.logger.Info().Str("run_id", runID).Msg("cancelled queued run")
	return nil
}

// GetTask returns one run by id.
func (s *Service) GetTask(ctx context.Context, runID string) (*models.Run, error) {
	return s.runs.Get(ctx, runID)
}

// GetAllTasks returns all runs in creation order.
func (s *Service) GetAllTasks(ctx context.Context) ([]*models.Run, error) {
	return s.runs.List(ctx)
}

// Messages returns a run's persisted messages in insertion order.
func (s *Service) Messages(ctx context.Context, runID string) ([]*models.Message, error) {
	if _, err := s.runs.Get(ctx, runID); err != nil {
		return nil, err
	}
	return s.messages.ListByRun(ctx, runID)
}

// Wait blocks until the run's lifecycle goroutine exits. It returns
// immediately for runs with no registered lifecycle.
func (s *Service) Wait(runID string) {
	s.mu.Lock()
	handle, ok := s.active[runID]
	s.mu.Unlock()
	if !ok {
		return
	}
	<-handle.done
}

// resolveAgent loads the run's profile (if any) and resolves its
// adapter. An explicit override wins over the profile, which wins over
// the configured default.
func (s *Service) resolveAgent(run *models.Run, override string) (agent.Adapter, *agent.Profile, error) {
	var profile *agent.Profile
	if run.AgentProfileID != "" {
		path := filepath.Join(s.cfg.Agents.ProfileDir, run.AgentProfileID+".toml")
		loaded, err := agent.LoadProfile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve agent profile %s: %w", run.AgentProfileID, err)
		}
		profile = loaded
	}

	agentType := s.cfg.Agents.DefaultType
	if profile != nil && profile.AgentType != "" {
		agentType = profile.AgentType
	}
	if override != "" {
		agentType = override
	}

	adapter, err := s.newAdapter(agentType)
	if err != nil {
		return nil, nil, err
	}
	return adapter, profile, nil
}

func (s *Service) deregister(runID string, handle *activeRun) {
	s.mu.Lock()
	if current, ok := s.active[runID]; ok && current == handle {
		delete(s.active, runID)
	}
	s.mu.Unlock()
}

// setPhase persists a phase transition. A store error here is fatal to
// the process via persistFailure; the returned error aborts the
// lifecycle for overridden handlers.
func (s *Service) setPhase(ctx context.Context, runID string, phase models.RunPhase) error {
	_, err := s.runs.Update(ctx, runID, db.RunUpdate{Phase: &phase})
	if err != nil {
		s.persistFailure(runID, err)
	}
	return err
}
