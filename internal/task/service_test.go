package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tOgg1/armada/internal/agent"
	"github.com/tOgg1/armada/internal/config"
	"github.com/tOgg1/armada/internal/db"
	"github.com/tOgg1/armada/internal/models"
	"github.com/tOgg1/armada/internal/testutil"
	"github.com/tOgg1/armada/internal/worktree"
)

// scriptAdapter runs a shell script standing in for a real agent CLI.
// Output lines "msg <text>" and "progress <percent>" become events.
type scriptAdapter struct {
	script string
}

func (a *scriptAdapter) Name() string { return "script" }

func (a *scriptAdapter) Command(prompt string, profile *agent.Profile) (string, []string) {
	return "/bin/sh", []string{"-c", a.script}
}

func (a *scriptAdapter) ParseLine(line string) (agent.Event, bool) {
	switch {
	case strings.HasPrefix(line, "msg "):
		return agent.Event{
			Type:    agent.EventMessage,
			Role:    models.MessageRoleAssistant,
			Content: strings.TrimPrefix(line, "msg "),
		}, true
	case strings.HasPrefix(line, "progress "):
		percent, err := strconv.Atoi(strings.TrimPrefix(line, "progress "))
		if err != nil {
			return agent.Event{}, false
		}
		return agent.Event{Type: agent.EventProgress, Percent: percent}, true
	default:
		return agent.Event{}, false
	}
}

// fakeWorktrees satisfies the service's worktree needs with plain
// directories, keeping these tests independent of git.
type fakeWorktrees struct {
	base       string
	failCreate bool

	mu      sync.Mutex
	removed []string
}

func (f *fakeWorktrees) Create(ctx context.Context, baseBranch, runID string) (*worktree.Worktree, error) {
	if f.failCreate {
		return nil, errors.New("git worktree add failed")
	}
	path := filepath.Join(f.base, runID)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}
	return &worktree.Worktree{Path: path, Branch: "armada/" + runID[:8]}, nil
}

func (f *fakeWorktrees) Remove(ctx context.Context, path string) error {
	f.mu.Lock()
	f.removed = append(f.removed, path)
	f.mu.Unlock()
	return os.RemoveAll(path)
}

func (f *fakeWorktrees) removedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.removed...)
}

type serviceEnv struct {
	service   *Service
	store     *testutil.TestDBEnv
	worktrees *fakeWorktrees
	cfg       *config.Config
}

func newServiceEnv(t *testing.T, script string, mutate func(*config.Config)) *serviceEnv {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}

	cfg := config.DefaultConfig()
	cfg.Skills.GlobalDir = filepath.Join(t.TempDir(), "global-skills")
	cfg.Skills.LocalDir = filepath.Join(t.TempDir(), "local-skills")
	cfg.Agents.ProfileDir = t.TempDir()
	cfg.Hooks.Setup = nil
	cfg.Hooks.Cleanup = nil
	if mutate != nil {
		mutate(cfg)
	}

	store := testutil.NewTestDBEnv(t)
	t.Cleanup(store.Close)
	worktrees := &fakeWorktrees{base: t.TempDir()}

	service := NewService(cfg, store.DB,
		WithWorktreeManager(worktrees),
		WithAdapterFactory(func(agentType string) (agent.Adapter, error) {
			return &scriptAdapter{script: script}, nil
		}),
		WithPersistFailureHandler(func(runID string, err error) {
			t.Errorf("store failure for run %s: %v", runID, err)
		}),
	)

	return &serviceEnv{service: service, store: store, worktrees: worktrees, cfg: cfg}
}

func (e *serviceEnv) runToCompletion(t *testing.T, params CreateTaskParams) *models.Run {
	t.Helper()
	ctx := context.Background()

	run, err := e.service.CreateTask(ctx, params)
	if err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}
	if _, err := e.service.StartTask(ctx, run.ID, ""); err != nil {
		t.Fatalf("StartTask() error: %v", err)
	}
	e.service.Wait(run.ID)

	final, err := e.service.GetTask(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	return final
}

func TestCreateTaskDefaults(t *testing.T) {
	env := newServiceEnv(t, "true", nil)
	ctx := context.Background()

	run, err := env.service.CreateTask(ctx, CreateTaskParams{Prompt: "do the thing"})
	if err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}
	if run.Status != models.RunStatusQueued {
		t.Errorf("Status = %q, want queued", run.Status)
	}
	if run.BaseBranch != "main" {
		t.Errorf("BaseBranch = %q, want preference fallback main", run.BaseBranch)
	}
	if run.WorktreePath != "" {
		t.Errorf("WorktreePath = %q, want no side effects before start", run.WorktreePath)
	}
}

func TestCreateTaskUsesPreferences(t *testing.T) {
	env := newServiceEnv(t, "true", nil)
	ctx := context.Background()

	if err := env.store.PreferenceRepo.Set(ctx, PrefDefaultBaseBranch, "develop"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	run, err := env.service.CreateTask(ctx, CreateTaskParams{Prompt: "do the thing"})
	if err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}
	if run.BaseBranch != "develop" {
		t.Errorf("BaseBranch = %q, want preference value", run.BaseBranch)
	}
}

func TestCreateTaskEmptyPrompt(t *testing.T) {
	env := newServiceEnv(t, "true", nil)

	_, err := env.service.CreateTask(context.Background(), CreateTaskParams{})
	if !errors.Is(err, models.ErrInvalidPrompt) {
		t.Fatalf("CreateTask() error = %v, want ErrInvalidPrompt", err)
	}
}

func TestLifecycleCompletes(t *testing.T) {
	env := newServiceEnv(t, `
echo "progress 50"
echo "msg halfway there"
echo "msg all done"
`, nil)

	final := env.runToCompletion(t, CreateTaskParams{Prompt: "build the feature"})

	if final.Status != models.RunStatusCompleted {
		t.Fatalf("Status = %q, want completed", final.Status)
	}
	if final.Phase != models.RunPhaseFinalization {
		t.Errorf("Phase = %q, want finalization", final.Phase)
	}
	if final.ProgressPercent != 50 {
		t.Errorf("ProgressPercent = %d, want 50", final.ProgressPercent)
	}
	if final.CompletedAt == nil || final.DurationMs == nil {
		t.Errorf("terminal fields not set: %+v", final)
	}
	if final.WorktreePath != "" {
		t.Errorf("WorktreePath = %q, want cleared after removal", final.WorktreePath)
	}
	if len(env.worktrees.removedPaths()) != 1 {
		t.Errorf("removed %d worktrees, want 1", len(env.worktrees.removedPaths()))
	}

	messages, err := env.service.Messages(context.Background(), final.ID)
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("got %d messages, want user prompt + 2 assistant", len(messages))
	}
	if messages[0].Role != models.MessageRoleUser || messages[0].Content != "build the feature" {
		t.Errorf("messages[0] = %+v, want user prompt", messages[0])
	}
	if messages[2].Content != "all done" {
		t.Errorf("messages[2] = %+v", messages[2])
	}
}

func TestLifecycleAgentFailure(t *testing.T) {
	env := newServiceEnv(t, "exit 3", nil)

	final := env.runToCompletion(t, CreateTaskParams{Prompt: "doomed"})

	if final.Status != models.RunStatusFailed {
		t.Fatalf("Status = %q, want failed", final.Status)
	}

	messages, err := env.service.Messages(context.Background(), final.ID)
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	last := messages[len(messages)-1]
	if last.Role != models.MessageRoleAssistant || !strings.Contains(last.Content, "exited with code 3") {
		t.Errorf("last message = %+v, want failure reason", last)
	}
	if len(env.worktrees.removedPaths()) != 1 {
		t.Errorf("removed %d worktrees, want cleanup on failure", len(env.worktrees.removedPaths()))
	}
}

func TestLifecycleWorktreeCreationFailure(t *testing.T) {
	env := newServiceEnv(t, "true", nil)
	env.worktrees.failCreate = true

	final := env.runToCompletion(t, CreateTaskParams{Prompt: "no worktree"})

	if final.Status != models.RunStatusFailed {
		t.Fatalf("Status = %q, want failed", final.Status)
	}
	if final.Phase != models.RunPhaseWorktreeCreation {
		t.Errorf("Phase = %q, want worktree_creation", final.Phase)
	}

	messages, err := env.service.Messages(context.Background(), final.ID)
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	if len(messages) != 1 || !strings.Contains(messages[0].Content, "worktree creation failed") {
		t.Errorf("messages = %+v, want single failure reason", messages)
	}
}

func TestLifecycleSetupHookFailure(t *testing.T) {
	env := newServiceEnv(t, "true", func(cfg *config.Config) {
		cfg.Hooks.Setup = []string{"echo hook boom >&2; exit 5"}
	})

	final := env.runToCompletion(t, CreateTaskParams{Prompt: "hooked"})

	if final.Status != models.RunStatusFailed {
		t.Fatalf("Status = %q, want failed", final.Status)
	}
	if final.Phase != models.RunPhaseSetupHooks {
		t.Errorf("Phase = %q, want setup_hooks", final.Phase)
	}
	if len(env.worktrees.removedPaths()) != 1 {
		t.Errorf("worktree not cleaned up after hook failure")
	}
}

func TestLifecycleSetupHooksRunInWorktree(t *testing.T) {
	env := newServiceEnv(t, "true", func(cfg *config.Config) {
		cfg.Hooks.Setup = []string{"touch setup-ran"}
	})

	final := env.runToCompletion(t, CreateTaskParams{Prompt: "hooked", RetainWorktree: true})

	if final.Status != models.RunStatusCompleted {
		t.Fatalf("Status = %q, want completed", final.Status)
	}
	if _, err := os.Stat(filepath.Join(final.WorktreePath, "setup-ran")); err != nil {
		t.Errorf("setup hook marker missing: %v", err)
	}
}

func TestLifecycleRetainWorktree(t *testing.T) {
	env := newServiceEnv(t, "true", nil)

	final := env.runToCompletion(t, CreateTaskParams{Prompt: "keep it", RetainWorktree: true})

	if final.Status != models.RunStatusCompleted {
		t.Fatalf("Status = %q, want completed", final.Status)
	}
	if final.WorktreePath == "" {
		t.Errorf("WorktreePath cleared, want retained")
	}
	if len(env.worktrees.removedPaths()) != 0 {
		t.Errorf("worktree removed despite retention")
	}
}

func TestLifecycleTimeout(t *testing.T) {
	env := newServiceEnv(t, "sleep 60", nil)
	env.service.runner = agent.NewRunner(300*time.Millisecond, time.Second)

	final := env.runToCompletion(t, CreateTaskParams{Prompt: "slow"})

	if final.Status != models.RunStatusFailed {
		t.Fatalf("Status = %q, want failed", final.Status)
	}

	messages, err := env.service.Messages(context.Background(), final.ID)
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	last := messages[len(messages)-1]
	if !strings.Contains(last.Content, "timeout") {
		t.Errorf("last message = %q, want timeout reason", last.Content)
	}
}

func TestSkillInjection(t *testing.T) {
	env := newServiceEnv(t, "true", nil)

	if err := os.MkdirAll(env.cfg.Skills.LocalDir, 0755); err != nil {
		t.Fatalf("failed to create skills dir: %v", err)
	}
	skillDoc := "---\nname: Reviewer\n---\nReview carefully.\n"
	if err := os.WriteFile(filepath.Join(env.cfg.Skills.LocalDir, "reviewer.md"), []byte(skillDoc), 0644); err != nil {
		t.Fatalf("failed to write skill: %v", err)
	}

	final := env.runToCompletion(t, CreateTaskParams{Prompt: "check my diff", SkillID: "reviewer"})

	if final.Status != models.RunStatusCompleted {
		t.Fatalf("Status = %q, want completed", final.Status)
	}

	messages, err := env.service.Messages(context.Background(), final.ID)
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	if !strings.HasPrefix(messages[0].Content, "You are operating as: Reviewer") {
		t.Errorf("messages[0] = %q, want injected persona", messages[0].Content)
	}
	if !strings.Contains(messages[0].Content, "check my diff") {
		t.Errorf("messages[0] = %q, want original prompt included", messages[0].Content)
	}
}

func TestSkillMissingIsIgnored(t *testing.T) {
	env := newServiceEnv(t, "true", nil)

	final := env.runToCompletion(t, CreateTaskParams{Prompt: "plain", SkillID: "ghost"})

	if final.Status != models.RunStatusCompleted {
		t.Fatalf("Status = %q, want completed despite missing skill", final.Status)
	}

	messages, err := env.service.Messages(context.Background(), final.ID)
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	if messages[0].Content != "plain" {
		t.Errorf("messages[0] = %q, want prompt unchanged", messages[0].Content)
	}
}

func TestStartTaskUnknownRun(t *testing.T) {
	env := newServiceEnv(t, "true", nil)

	_, err := env.service.StartTask(context.Background(), "no-such-run", "")
	if !errors.Is(err, db.ErrRunNotFound) {
		t.Fatalf("StartTask() error = %v, want ErrRunNotFound", err)
	}
}

func TestStartTaskRejectsNonQueued(t *testing.T) {
	env := newServiceEnv(t, "true", nil)

	final := env.runToCompletion(t, CreateTaskParams{Prompt: "once"})

	_, err := env.service.StartTask(context.Background(), final.ID, "")
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("StartTask() error = %v, want InvalidStateError", err)
	}
	if stateErr.Status != models.RunStatusCompleted {
		t.Errorf("Status = %q, want completed", stateErr.Status)
	}
}

func TestStartTaskUnknownAgentType(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Agents.DefaultType = "gpt-telnet"
	cfg.Skills.LocalDir = t.TempDir()
	cfg.Agents.ProfileDir = t.TempDir()

	store := testutil.NewTestDBEnv(t)
	t.Cleanup(store.Close)
	service := NewService(cfg, store.DB,
		WithWorktreeManager(&fakeWorktrees{base: t.TempDir()}),
	)
	ctx := context.Background()

	run, err := service.CreateTask(ctx, CreateTaskParams{Prompt: "never starts"})
	if err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}

	_, err = service.StartTask(ctx, run.ID, "")
	if !errors.Is(err, agent.ErrUnknownAgentType) {
		t.Fatalf("StartTask() error = %v, want ErrUnknownAgentType", err)
	}

	// pre-flight failure leaves the run startable
	reloaded, err := service.GetTask(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	if reloaded.Status != models.RunStatusQueued {
		t.Errorf("Status = %q, want still queued", reloaded.Status)
	}
}

func TestStartTaskAgentTypeOverride(t *testing.T) {
	var (
		mu        sync.Mutex
		requested []string
	)
	env := newServiceEnv(t, "true", nil)
	env.service.newAdapter = func(agentType string) (agent.Adapter, error) {
		mu.Lock()
		requested = append(requested, agentType)
		mu.Unlock()
		return &scriptAdapter{script: "true"}, nil
	}
	ctx := context.Background()

	run, err := env.service.CreateTask(ctx, CreateTaskParams{Prompt: "pick the agent"})
	if err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}
	if _, err := env.service.StartTask(ctx, run.ID, "codex"); err != nil {
		t.Fatalf("StartTask() error: %v", err)
	}
	env.service.Wait(run.ID)

	mu.Lock()
	defer mu.Unlock()
	if len(requested) == 0 || requested[0] != "codex" {
		t.Errorf("adapter factory requested %v, want codex", requested)
	}
}

func TestCancelRunningTask(t *testing.T) {
	env := newServiceEnv(t, "sleep 60", nil)
	ctx := context.Background()

	run, err := env.service.CreateTask(ctx, CreateTaskParams{Prompt: "long haul"})
	if err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}
	if _, err := env.service.StartTask(ctx, run.ID, ""); err != nil {
		t.Fatalf("StartTask() error: %v", err)
	}

	waitForPhase(t, env.service, run.ID, models.RunPhaseAgentExecution)

	if err := env.service.Cancel(ctx, run.ID); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	env.service.Wait(run.ID)

	final, err := env.service.GetTask(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	if final.Status != models.RunStatusCancelled {
		t.Fatalf("Status = %q, want cancelled", final.Status)
	}
	if final.CompletedAt == nil {
		t.Errorf("CompletedAt not set on cancellation")
	}

	messages, err := env.service.Messages(ctx, run.ID)
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	last := messages[len(messages)-1]
	if last.Content != "Run cancelled." {
		t.Errorf("last message = %q, want cancellation marker", last.Content)
	}
}

func TestCancelQueuedTask(t *testing.T) {
	env := newServiceEnv(t, "true", nil)
	ctx := context.Background()

	run, err := env.service.CreateTask(ctx, CreateTaskParams{Prompt: "never started"})
	if err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}
	if err := env.service.Cancel(ctx, run.ID); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	final, err := env.service.GetTask(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	if final.Status != models.RunStatusCancelled {
		t.Errorf("Status = %q, want cancelled", final.Status)
	}

	messages, err := env.service.Messages(ctx, run.ID)
	if err != nil {
		t.Fatalf("Messages() error: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "Run cancelled." {
		t.Errorf("messages = %+v, want the cancellation marker", messages)
	}
}

func TestCancelTerminalTask(t *testing.T) {
	env := newServiceEnv(t, "true", nil)

	final := env.runToCompletion(t, CreateTaskParams{Prompt: "done already"})

	err := env.service.Cancel(context.Background(), final.ID)
	var stateErr *InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("Cancel() error = %v, want InvalidStateError", err)
	}
}

func TestConcurrentRuns(t *testing.T) {
	env := newServiceEnv(t, `echo "msg ok"`, nil)
	ctx := context.Background()

	const n = 4
	ids := make([]string, n)
	for i := range ids {
		run, err := env.service.CreateTask(ctx, CreateTaskParams{
			Prompt: fmt.Sprintf("task %d", i),
		})
		if err != nil {
			t.Fatalf("CreateTask() error: %v", err)
		}
		ids[i] = run.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(runID string) {
			defer wg.Done()
			if _, err := env.service.StartTask(ctx, runID, ""); err != nil {
				t.Errorf("StartTask(%s) error: %v", runID, err)
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		env.service.Wait(id)
		final, err := env.service.GetTask(ctx, id)
		if err != nil {
			t.Fatalf("GetTask() error: %v", err)
		}
		if final.Status != models.RunStatusCompleted {
			t.Errorf("run %s status = %q, want completed", id, final.Status)
		}
	}
}

func waitForPhase(t *testing.T, service *Service, runID string, phase models.RunPhase) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, err := service.GetTask(context.Background(), runID)
		if err != nil {
			t.Fatalf("GetTask() error: %v", err)
		}
		if run.Phase == phase || run.Terminal() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s never reached phase %s", runID, phase)
}
