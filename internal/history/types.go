package history

import (
	"context"
	"time"
)

// Turn is one journaled transcript line. Text is stored redacted.
type Turn struct {
	Source      string    `json:"source"`
	Text        string    `json:"text"`
	PIIRedacted bool      `json:"pii_redacted"`
	At          time.Time `json:"at"`
}

// SessionRecord is a finished conversation session.
type SessionRecord struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	AgentID        string    `json:"agent_id"`
	AgentName      string    `json:"agent_name"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	EndReason      string    `json:"end_reason"`
	Turns          []Turn    `json:"turns"`
}

// VoiceCloneRecord is a voice created from a recorded sample.
type VoiceCloneRecord struct {
	ID          string    `json:"id"`
	VoiceID     string    `json:"voice_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists the session and voice clone journal.
type Store interface {
	SaveSession(ctx context.Context, record SessionRecord) error
	RecentSessions(ctx context.Context, userID string, limit int) ([]SessionRecord, error)
	SaveVoiceClone(ctx context.Context, record VoiceCloneRecord) error
	RecentVoiceClones(ctx context.Context, limit int) ([]VoiceCloneRecord, error)
	Close() error
}

const defaultRecentLimit = 10
