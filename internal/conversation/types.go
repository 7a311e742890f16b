package conversation

import (
	"time"

	"github.com/ent0n29/echo/internal/agents"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

type Source string

const (
	SourceUser  Source = "user"
	SourceAgent Source = "agent"
)

// TranscriptEntry is one line of the conversation as seen by the client.
type TranscriptEntry struct {
	Source Source    `json:"source"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// State is a snapshot of the conversation session. SessionID is non-empty
// only while Status is connected.
type State struct {
	Status          Status            `json:"status"`
	SessionID       string            `json:"session_id,omitempty"`
	IsSpeaking      bool              `json:"is_speaking"`
	CanSendFeedback bool              `json:"can_send_feedback"`
	IsMicMuted      bool              `json:"is_mic_muted"`
	Agent           agents.Identity   `json:"agent"`
	LastError       string            `json:"last_error,omitempty"`
	Input           string            `json:"input"`
	Transcript      []TranscriptEntry `json:"transcript"`
}

func (s State) clone() State {
	out := s
	out.Transcript = append([]TranscriptEntry(nil), s.Transcript...)
	return out
}
