package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Preference repository errors.
var (
	ErrPreferenceNotFound = errors.New("preference not found")
)

// PreferenceRepository handles global key/value preference persistence.
type PreferenceRepository struct {
	db *DB
}

// NewPreferenceRepository creates a new PreferenceRepository.
func NewPreferenceRepository(db *DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Get retrieves a preference value by key.
func (r *PreferenceRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		"SELECT value FROM preferences WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrPreferenceNotFound
		}
		return "", fmt.Errorf("failed to query preference: %w", err)
	}
	return value, nil
}

// GetDefault retrieves a preference value, falling back to fallback when
// the key is unset.
func (r *PreferenceRepository) GetDefault(ctx context.Context, key, fallback string) (string, error) {
	value, err := r.Get(ctx, key)
	if errors.Is(err, ErrPreferenceNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores a preference value, overwriting any existing value.
func (r *PreferenceRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to set preference: %w", err)
	}
	return nil
}
