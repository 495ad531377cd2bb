package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/tOgg1/armada/internal/logging"
)

const (
	defaultGracePeriod = 5 * time.Second

	// scanBufferSize bounds a single agent output line.
	scanBufferSize = 1024 * 1024
)

// ProcessError indicates the agent process failed to spawn, crashed, or
// exited unexpectedly.
type ProcessError struct {
	AgentType string
	Err       error
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	return fmt.Sprintf("agent %s process failed: %v", e.AgentType, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ProcessError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates the run exceeded its execution budget.
type TimeoutError struct {
	Limit time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("agent run exceeded timeout of %s", e.Limit)
}

// Runner spawns agent processes and streams their output as events.
type Runner struct {
	// Timeout is the maximum wall-clock duration per run. Zero
	// disables the timeout.
	Timeout time.Duration

	// GracePeriod is how long to wait between the termination signal
	// and a forced kill.
	GracePeriod time.Duration

	logger zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(timeout, gracePeriod time.Duration) *Runner {
	if gracePeriod <= 0 {
		gracePeriod = defaultGracePeriod
	}
	return &Runner{
		Timeout:     timeout,
		GracePeriod: gracePeriod,
		logger:      logging.Component("agent"),
	}
}

// Handle is a cancellable agent execution producing a finite event
// sequence. The sequence terminates at process exit or forced
// cancellation and is not restartable.
type Handle struct {
	events chan Event

	cancelOnce sync.Once
	cancelCh   chan struct{}
	waitDone   chan struct{}

	mu       sync.Mutex
	timedOut bool
	err      error
}

// Events returns the event stream. The channel is closed after the
// final exit event; the consumer must drain it.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// Cancel requests termination of the agent process. The event sequence
// ends promptly: a termination signal is sent, followed by a forced
// kill after the grace period.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() {
		close(h.cancelCh)
	})
}

// Err reports why the event sequence ended early: a TimeoutError when
// the execution budget expired, a ProcessError when reading the output
// stream failed, nil otherwise. Valid after the event channel is
// closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Run spawns the agent CLI inside the worktree and returns a handle for
// its output. Spawn failures are returned immediately as ProcessError.
func (r *Runner) Run(ctx context.Context, adapter Adapter, worktreePath, prompt string, profile *Profile) (*Handle, error) {
	command, args := adapter.Command(prompt, profile)

	cmd := exec.Command(command, args...)
	cmd.Dir = worktreePath
	cmd.Env = os.Environ()
	if profile != nil {
		for key, value := range profile.Env {
			cmd.Env = append(cmd.Env, key+"="+value)
		}
	}

	stderrTail := newTailBuffer(20)
	cmd.Stderr = stderrTail

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ProcessError{AgentType: adapter.Name(), Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &ProcessError{AgentType: adapter.Name(), Err: err}
	}

	r.logger.Debug().
		Str("agent", adapter.Name()).
		Str("worktree", worktreePath).
		Int("pid", cmd.Process.Pid).
		Msg("spawned agent process")

	handle := &Handle{
		events:   make(chan Event, 16),
		cancelCh: make(chan struct{}),
		waitDone: make(chan struct{}),
	}

	go r.watch(ctx, cmd, handle, adapter.Name())

	go func() {
		defer close(handle.events)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), scanBufferSize)
		for scanner.Scan() {
			event, ok := adapter.ParseLine(scanner.Text())
			if !ok {
				continue
			}
			handle.events <- event
		}

		// A scan error (a line beyond scanBufferSize, a read failure)
		// leaves unread output in the pipe. Drain it so the process can
		// exit instead of blocking on a full pipe forever.
		scanErr := scanner.Err()
		if scanErr != nil {
			_, _ = io.Copy(io.Discard, stdout)
			r.logger.Warn().
				Str("agent", adapter.Name()).
				Err(scanErr).
				Msg("agent output scan aborted, draining remaining output")
		}

		waitErr := cmd.Wait()
		close(handle.waitDone)

		exitCode := 0
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		if waitErr != nil && exitCode == 0 {
			exitCode = -1
		}

		handle.mu.Lock()
		switch {
		case handle.timedOut:
			handle.err = &TimeoutError{Limit: r.Timeout}
		case scanErr != nil:
			handle.err = &ProcessError{AgentType: adapter.Name(), Err: scanErr}
		}
		handle.mu.Unlock()

		if waitErr != nil {
			r.logger.Debug().
				Str("agent", adapter.Name()).
				Int("exit_code", exitCode).
				Str("stderr_tail", stderrTail.String()).
				Msg("agent process exited with error")
		}

		handle.events <- Event{Type: EventExit, ExitCode: exitCode}
	}()

	return handle, nil
}

// watch terminates the process on cancellation or timeout.
func (r *Runner) watch(ctx context.Context, cmd *exec.Cmd, handle *Handle, agentType string) {
	var timeoutCh <-chan time.Time
	if r.Timeout > 0 {
		timer := time.NewTimer(r.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-handle.waitDone:
		return
	case <-ctx.Done():
	case <-handle.cancelCh:
	case <-timeoutCh:
		handle.mu.Lock()
		handle.timedOut = true
		handle.mu.Unlock()
		r.logger.Warn().
			Str("agent", agentType).
			Dur("timeout", r.Timeout).
			Msg("agent run exceeded timeout, terminating")
	}

	r.terminate(cmd, handle)
}

// terminate sends SIGTERM, waits out the grace period, then kills.
func (r *Runner) terminate(cmd *exec.Cmd, handle *Handle) {
	if cmd.Process == nil {
		return
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-handle.waitDone:
		return
	case <-time.After(r.GracePeriod):
	}

	_ = cmd.Process.Kill()
}

// tailBuffer keeps the last n lines written to it.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
	rest  string
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

// Write implements io.Writer.
func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	chunk := b.rest + string(p)
	parts := strings.Split(chunk, "\n")
	b.rest = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		b.lines = append(b.lines, line)
	}
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
	return len(p), nil
}

// String returns the buffered tail.
func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := b.lines
	if b.rest != "" {
		lines = append(append([]string{}, b.lines...), b.rest)
	}
	return strings.Join(lines, "\n")
}
