package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tOgg1/armada/internal/models"
)

// Message repository errors.
var (
	ErrMessageNotFound = errors.New("message not found")
)

// MessageRepository handles conversation message persistence.
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create adds a new message to a run's conversation.
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	if err := message.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, run_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		message.ID,
		message.RunID,
		string(message.Role),
		message.Content,
		message.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// ListByRun retrieves a run's messages in insertion order.
func (r *MessageRepository) ListByRun(ctx context.Context, runID string) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, run_id, role, content, created_at
		FROM messages
		WHERE run_id = ?
		ORDER BY rowid ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		message, err := r.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}

// CountByRun returns the number of messages in a run's conversation.
func (r *MessageRepository) CountByRun(ctx context.Context, runID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE run_id = ?", runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (r *MessageRepository) scanMessage(scanner interface{ Scan(...any) error }) (*models.Message, error) {
	var (
		id        string
		runID     string
		role      string
		content   string
		createdAt string
	)

	if err := scanner.Scan(&id, &runID, &role, &content, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	message := &models.Message{
		ID:      id,
		RunID:   runID,
		Role:    models.MessageRole(role),
		Content: content,
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		message.CreatedAt = t
	}

	return message, nil
}
