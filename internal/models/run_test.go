package models

import (
	"errors"
	"testing"
)

func TestRunValidate(t *testing.T) {
	run := &Run{
		Prompt:            "Fix the flaky test",
		Status:            RunStatusQueued,
		TotalSubtasks:     3,
		CompletedSubtasks: 1,
	}
	if err := run.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestRunValidateEmptyPrompt(t *testing.T) {
	run := &Run{Status: RunStatusQueued}
	err := run.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, ErrInvalidPrompt) {
		t.Fatalf("expected ErrInvalidPrompt, got %v", err)
	}
}

func TestRunValidateSubtaskBounds(t *testing.T) {
	run := &Run{
		Prompt:            "p",
		TotalSubtasks:     2,
		CompletedSubtasks: 3,
	}
	if err := run.Validate(); err == nil {
		t.Fatal("expected validation error for completed > total")
	}

	run = &Run{Prompt: "p", ProgressPercent: 120}
	if err := run.Validate(); err == nil {
		t.Fatal("expected validation error for progress > 100")
	}
}

func TestRunTerminal(t *testing.T) {
	cases := map[RunStatus]bool{
		RunStatusQueued:    false,
		RunStatusRunning:   false,
		RunStatusCompleted: true,
		RunStatusFailed:    true,
		RunStatusCancelled: true,
	}
	for status, want := range cases {
		run := &Run{Status: status}
		if run.Terminal() != want {
			t.Fatalf("Terminal() for %q = %v, want %v", status, run.Terminal(), want)
		}
	}
}

func TestPhaseIndex(t *testing.T) {
	if PhaseIndex(RunPhaseWorktreeCreation) != 0 {
		t.Fatal("worktree_creation should be first")
	}
	if PhaseIndex(RunPhaseFinalization) != len(PhaseOrder)-1 {
		t.Fatal("finalization should be last")
	}
	if PhaseIndex("bogus") != -1 {
		t.Fatal("unknown phase should return -1")
	}
}
