package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/muse/internal/models"
	"github.com/desertthunder/muse/internal/shared"
)

// MessageRepository implements [models.Repository] for chat transcript [models.Message] persistence.
//
// The transcript is append-only: Create and reads only.
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new [MessageRepository] with the given database connection
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new message into the transcript with generated ID and sequence
func (r *MessageRepository) Create(msg *models.Message) error {
	sequence, err := NextSequence(r.db, "chat_messages")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	msg.SetID(id)

	if err := msg.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO chat_messages (id, sequence, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, id, sequence, msg.SessionID(), msg.Role(), msg.Content(), msg.CreatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// Append is a convenience wrapper around Create for callers that only have raw turn data.
func (r *MessageRepository) Append(sessionID, role, content string) error {
	return r.Create(models.NewMessage(0, sessionID, role, content))
}

// Get retrieves a message by ID
func (r *MessageRepository) Get(id string) (*models.Message, error) {
	query := `
		SELECT id, sequence, session_id, role, content, created_at
		FROM chat_messages
		WHERE id = ?
	`

	msg, err := scanMessage(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}

	return msg, nil
}

// List retrieves all messages matching the given criteria in transcript order
func (r *MessageRepository) List(criteria map[string]any) ([]*models.Message, error) {
	query := `
		SELECT id, sequence, session_id, role, content, created_at
		FROM chat_messages
	`

	args := []any{}

	if sessionID, ok := criteria["session_id"].(string); ok && sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return messages, nil
}

// ListBySession retrieves a session's transcript in the order the turns were appended.
func (r *MessageRepository) ListBySession(sessionID string) ([]*models.Message, error) {
	return r.List(map[string]any{"session_id": sessionID})
}

// scanner abstracts over [sql.Row] and [sql.Rows]
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (*models.Message, error) {
	var (
		id        string
		sequence  int
		sessionID string
		role      string
		content   string
		createdAt time.Time
	)

	if err := s.Scan(&id, &sequence, &sessionID, &role, &content, &createdAt); err != nil {
		return nil, err
	}

	msg := models.NewMessage(sequence, sessionID, role, content)
	msg.SetID(id)
	msg.SetCreatedAt(createdAt)

	return msg, nil
}
