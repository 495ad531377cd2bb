package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/tOgg1/armada/internal/models"
)

func TestMessageRepository_CreateAndList(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	run := createTestRun(t, db)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		message := &models.Message{
			RunID:   run.ID,
			Role:    models.MessageRoleAssistant,
			Content: fmt.Sprintf("turn %d", i),
		}
		if err := repo.Create(ctx, message); err != nil {
			t.Fatalf("Create message failed: %v", err)
		}
	}

	messages, err := repo.ListByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListByRun failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, message := range messages {
		if message.Content != fmt.Sprintf("turn %d", i) {
			t.Fatalf("expected insertion order, got %q at index %d", message.Content, i)
		}
	}

	count, err := repo.CountByRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("CountByRun failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
}

func TestMessageRepository_UnknownRunRejected(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	message := &models.Message{
		RunID:   "missing",
		Role:    models.MessageRoleUser,
		Content: "orphan",
	}
	if err := NewMessageRepository(db).Create(context.Background(), message); err == nil {
		t.Fatal("expected foreign key violation for unknown run")
	}
}

func TestMessageRepository_ValidateRole(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	run := createTestRun(t, db)
	message := &models.Message{
		RunID:   run.ID,
		Role:    "system",
		Content: "nope",
	}
	if err := NewMessageRepository(db).Create(context.Background(), message); err == nil {
		t.Fatal("expected invalid role to be rejected")
	}
}
