package models

import (
	"fmt"
	"time"
)

// Message roles as stored in the transcript.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one turn of a chat transcript.
//
// Messages are append-only: once written they are never updated or deleted.
type Message struct {
	id        string
	sequence  int
	sessionID string
	role      string
	content   string
	createdAt time.Time
}

// NewMessage creates a Message for the given session, role, and content.
func NewMessage(sequence int, sessionID, role, content string) *Message {
	return &Message{
		sequence:  sequence,
		sessionID: sessionID,
		role:      role,
		content:   content,
		createdAt: time.Now(),
	}
}

func (m *Message) ID() string           { return m.id }
func (m *Message) Sequence() int        { return m.sequence }
func (m *Message) SessionID() string    { return m.sessionID }
func (m *Message) Role() string         { return m.role }
func (m *Message) Content() string      { return m.content }
func (m *Message) CreatedAt() time.Time { return m.createdAt }

func (m *Message) SetID(id string)          { m.id = id }
func (m *Message) SetCreatedAt(t time.Time) { m.createdAt = t }

// Validate checks that the message has a session, a known role, and content.
func (m *Message) Validate() error {
	if m.sessionID == "" {
		return fmt.Errorf("message session_id is required")
	}
	if m.role != RoleUser && m.role != RoleModel {
		return fmt.Errorf("message role must be %q or %q, got %q", RoleUser, RoleModel, m.role)
	}
	if m.content == "" {
		return fmt.Errorf("message content is required")
	}
	return nil
}
