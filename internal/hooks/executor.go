// Package hooks runs project-defined shell commands around agent
// execution: setup hooks before the agent starts, cleanup hooks after
// it finishes.
package hooks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tOgg1/armada/internal/logging"
)

// DefaultTimeout is used when no per-command timeout is configured.
const DefaultTimeout = 30 * time.Second

// Phase distinguishes where in the run lifecycle a hook executes.
type Phase string

const (
	PhaseSetup   Phase = "setup"
	PhaseCleanup Phase = "cleanup"
)

// CommandError reports a failed hook command, including which one and
// what it printed.
type CommandError struct {
	Phase   Phase
	Command string
	Output  string
	Err     error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s hook %q failed: %v", e.Phase, e.Command, e.Err)
}

// Unwrap exposes the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// RunContext carries the run identity exposed to hook commands through
// the environment.
type RunContext struct {
	RunID        string
	WorktreePath string
	Branch       string
}

// Executor runs hook command lists sequentially inside a run worktree.
type Executor struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewExecutor returns an executor with the given per-command timeout.
// A non-positive timeout falls back to DefaultTimeout.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		timeout: timeout,
		logger:  logging.Component("hooks"),
	}
}

// Run executes commands in order, stopping at the first failure. Each
// command runs via sh -c in the worktree directory with ARMADA_RUN_ID,
// ARMADA_WORKTREE and ARMADA_BRANCH set.
func (e *Executor) Run(ctx context.Context, phase Phase, commands []string, runCtx RunContext) error {
	for _, command := range commands {
		command = strings.TrimSpace(command)
		if command == "" {
			continue
		}
		if err := e.runCommand(ctx, phase, command, runCtx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) runCommand(ctx context.Context, phase Phase, command string, runCtx RunContext) error {
	cmdCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	cmd.Dir = runCtx.WorktreePath
	cmd.Env = append(os.Environ(),
		"ARMADA_RUN_ID="+runCtx.RunID,
		"ARMADA_WORKTREE="+runCtx.WorktreePath,
		"ARMADA_BRANCH="+runCtx.Branch,
	)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	e.logger.Debug().
		Str("run_id", runCtx.RunID).
		Str("phase", string(phase)).
		Str("command", command).
		Msg("running hook command")

	if err := cmd.Run(); err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s", e.timeout)
		}
		return &CommandError{
			Phase:   phase,
			Command: command,
			Output:  output.String(),
			Err:     err,
		}
	}
	return nil
}
