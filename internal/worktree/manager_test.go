package worktree

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
)

// initTestRepo creates a git repository with one commit on main.
func initTestRepo(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	repo := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}

	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(repo, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	run("add", ".")
	run("commit", "-m", "initial commit")

	return repo
}

func TestManager_CreateAndRemove(t *testing.T) {
	repo := initTestRepo(t)
	manager := NewManager(repo, filepath.Join(t.TempDir(), "worktrees"), "armada")
	ctx := context.Background()

	wt, err := manager.Create(ctx, "main", "0123456789abcdef")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if wt.Path == "" || wt.Branch == "" {
		t.Fatal("expected path and branch to be set")
	}
	if _, err := os.Stat(wt.Path); err != nil {
		t.Fatalf("worktree path does not exist: %v", err)
	}

	if err := manager.Remove(ctx, wt.Path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(wt.Path); !os.IsNotExist(err) {
		t.Fatal("expected worktree path to be gone")
	}

	// Removing again is a no-op.
	if err := manager.Remove(ctx, wt.Path); err != nil {
		t.Fatalf("second Remove failed: %v", err)
	}
}

func TestManager_CreateUnknownBaseBranch(t *testing.T) {
	repo := initTestRepo(t)
	manager := NewManager(repo, filepath.Join(t.TempDir(), "worktrees"), "armada")

	_, err := manager.Create(context.Background(), "no-such-branch", "run1runx")
	if err == nil {
		t.Fatal("expected error for unknown base branch")
	}
	var gitErr *GitError
	if !errors.As(err, &gitErr) {
		t.Fatalf("expected GitError, got %T (%v)", err, err)
	}
}

func TestManager_CreateOutsideRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	manager := NewManager(t.TempDir(), filepath.Join(t.TempDir(), "worktrees"), "armada")
	_, err := manager.Create(context.Background(), "main", "run1runx")
	var gitErr *GitError
	if !errors.As(err, &gitErr) {
		t.Fatalf("expected GitError, got %v", err)
	}
}

func TestManager_BranchCollision(t *testing.T) {
	repo := initTestRepo(t)
	manager := NewManager(repo, filepath.Join(t.TempDir(), "worktrees"), "armada")
	ctx := context.Background()

	// Two runs whose ids share the same 8-char prefix must still get
	// distinct branches.
	first, err := manager.Create(ctx, "main", "aaaaaaaa-1111")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second, err := manager.Create(ctx, "main", "aaaaaaaa-2222")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if first.Branch == second.Branch {
		t.Fatalf("expected distinct branches, both got %q", first.Branch)
	}
	if first.Path == second.Path {
		t.Fatalf("expected distinct paths, both got %q", first.Path)
	}
}

func TestManager_ConcurrentCreates(t *testing.T) {
	repo := initTestRepo(t)
	manager := NewManager(repo, filepath.Join(t.TempDir(), "worktrees"), "armada")
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	results := make([]*Worktree, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = manager.Create(ctx, "main", fmt.Sprintf("run%04d-%d", i, i))
		}(i)
	}
	wg.Wait()

	paths := make(map[string]bool)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("Create %d failed: %v", i, errs[i])
		}
		if results[i].Path == "" {
			t.Fatalf("Create %d returned empty path", i)
		}
		if paths[results[i].Path] {
			t.Fatalf("duplicate worktree path %q", results[i].Path)
		}
		paths[results[i].Path] = true
	}

	// The repository must still be usable afterwards.
	cmd := exec.Command("git", "worktree", "list")
	cmd.Dir = repo
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git worktree list failed after concurrent creates: %v\n%s", err, out)
	}

	for _, wt := range results {
		if err := manager.Remove(ctx, wt.Path); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
	}
}
