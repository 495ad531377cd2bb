// Package worktree maps runs to exclusive, disposable git working trees.
package worktree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tOgg1/armada/internal/logging"
)

// GitError wraps a failed git operation.
type GitError struct {
	Op     string
	Stderr string
	Err    error
}

// Error implements the error interface.
func (e *GitError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr != "" {
		return fmt.Sprintf("git %s failed: %s", e.Op, stderr)
	}
	return fmt.Sprintf("git %s failed: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying error.
func (e *GitError) Unwrap() error {
	return e.Err
}

// Worktree describes a created working tree.
type Worktree struct {
	// Path is the filesystem location of the working tree.
	Path string

	// Branch is the branch checked out in the working tree.
	Branch string
}

// Manager creates and destroys isolated worktrees for one repository.
//
// git's worktree registry is a single mutable structure shared by the
// whole repository, so every create/remove across all runs is
// serialized through the manager's mutex. The mutex is scoped to the
// repository, not to a run.
type Manager struct {
	repoPath     string
	worktreesDir string
	branchPrefix string

	mu     sync.Mutex
	logger zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger overrides the manager's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager for the repository at repoPath. Worktrees
// are rooted under worktreesDir and branches are named with branchPrefix.
func NewManager(repoPath, worktreesDir, branchPrefix string, opts ...Option) *Manager {
	m := &Manager{
		repoPath:     repoPath,
		worktreesDir: worktreesDir,
		branchPrefix: branchPrefix,
		logger:       logging.Component("worktree"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create checks out a new branch from baseBranch into a fresh worktree
// for the given run. The branch name derives from the configured prefix
// and a short unique suffix, collision-checked against existing branches.
func (m *Manager) Create(ctx context.Context, baseBranch, runID string) (*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureRepo(ctx); err != nil {
		return nil, err
	}

	if _, _, err := m.runGit(ctx, "rev-parse", "--verify", "--quiet", baseBranch); err != nil {
		return nil, &GitError{
			Op:  "rev-parse",
			Err: fmt.Errorf("base branch %q does not exist: %w", baseBranch, err),
		}
	}

	branch, err := m.uniqueBranchName(ctx, runID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(m.worktreesDir, 0o755); err != nil {
		return nil, &GitError{Op: "worktree add", Err: fmt.Errorf("failed to create worktrees dir: %w", err)}
	}

	path := filepath.Join(m.worktreesDir, strings.ReplaceAll(branch, "/", "-"))
	if _, stderr, err := m.runGit(ctx, "worktree", "add", "-b", branch, path, baseBranch); err != nil {
		return nil, &GitError{Op: "worktree add", Stderr: stderr, Err: err}
	}

	m.logger.Info().
		Str("run_id", runID).
		Str("branch", branch).
		Str("path", path).
		Msg("created worktree")

	return &Worktree{Path: path, Branch: branch}, nil
}

// Remove deletes a worktree and prunes the registry. Already-removed
// worktrees are logged and ignored; other failures return a GitError so
// the caller can decide whether to record and move on. The run's branch
// is kept so the work it holds survives the worktree.
func (m *Manager) Remove(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureRepo(ctx); err != nil {
		return err
	}

	_, stderr, err := m.runGit(ctx, "worktree", "remove", "--force", path)
	if err != nil {
		if alreadyRemoved(stderr) {
			m.logger.Debug().Str("path", path).Msg("worktree already removed")
		} else {
			return &GitError{Op: "worktree remove", Stderr: stderr, Err: err}
		}
	}

	if _, stderr, err := m.runGit(ctx, "worktree", "prune"); err != nil {
		return &GitError{Op: "worktree prune", Stderr: stderr, Err: err}
	}

	m.logger.Info().Str("path", path).Msg("removed worktree")
	return nil
}

// uniqueBranchName derives a branch name from the prefix and the run id,
// regenerating the suffix while it collides with an existing branch.
func (m *Manager) uniqueBranchName(ctx context.Context, runID string) (string, error) {
	suffix := shortSuffix(runID)
	for attempt := 0; attempt < 5; attempt++ {
		branch := m.branchPrefix + "/" + suffix
		_, _, err := m.runGit(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				// Branch does not exist, the name is free.
				return branch, nil
			}
			return "", &GitError{Op: "rev-parse", Err: err}
		}
		suffix = shortSuffix(uuid.New().String())
	}
	return "", &GitError{Op: "branch", Err: fmt.Errorf("failed to find a free branch name for run %s", runID)}
}

// ensureRepo verifies the repository is initialized.
func (m *Manager) ensureRepo(ctx context.Context) error {
	out, stderr, err := m.runGit(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return &GitError{Op: "rev-parse", Stderr: stderr, Err: fmt.Errorf("not a git repository: %w", err)}
	}
	if strings.TrimSpace(out) != "true" {
		return &GitError{Op: "rev-parse", Err: fmt.Errorf("%s is not inside a work tree", m.repoPath)}
	}
	return nil
}

func (m *Manager) runGit(ctx context.Context, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = m.repoPath

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func alreadyRemoved(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "is not a working tree") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "does not exist")
}

func shortSuffix(value string) string {
	cleaned := strings.ReplaceAll(value, "-", "")
	if len(cleaned) > 8 {
		cleaned = cleaned[:8]
	}
	if cleaned == "" {
		cleaned = shortSuffix(uuid.New().String())
	}
	return strings.ToLower(cleaned)
}
