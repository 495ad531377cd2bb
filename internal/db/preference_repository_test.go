package db

import (
	"context"
	"errors"
	"testing"
)

func TestPreferenceRepository_SetGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPreferenceRepository(db)
	ctx := context.Background()

	if err := repo.Set(ctx, "default_base_branch", "main"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, err := repo.Get(ctx, "default_base_branch")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "main" {
		t.Fatalf("expected main, got %q", value)
	}

	// Overwrite
	if err := repo.Set(ctx, "default_base_branch", "develop"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, err = repo.Get(ctx, "default_base_branch")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "develop" {
		t.Fatalf("expected develop, got %q", value)
	}
}

func TestPreferenceRepository_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPreferenceRepository(db)
	ctx := context.Background()

	_, err := repo.Get(ctx, "missing")
	if !errors.Is(err, ErrPreferenceNotFound) {
		t.Fatalf("expected ErrPreferenceNotFound, got %v", err)
	}

	value, err := repo.GetDefault(ctx, "missing", "fallback")
	if err != nil {
		t.Fatalf("GetDefault failed: %v", err)
	}
	if value != "fallback" {
		t.Fatalf("expected fallback, got %q", value)
	}
}
