package conversation

import (
	"context"

	"github.com/ent0n29/echo/internal/agents"
)

type StartRequest struct {
	AgentID string
	UserID  string
}

// Capability opens live conversation sessions.
type Capability interface {
	Start(ctx context.Context, req StartRequest) (Handle, error)
}

// Handle is one live session. Events is closed when the transport ends.
// End must be safe to call more than once.
type Handle interface {
	ID() string
	Events() <-chan Event
	SendUserMessage(ctx context.Context, text string) error
	SendContextualUpdate(ctx context.Context, text string) error
	SendUserActivity(ctx context.Context) error
	SendFeedback(ctx context.Context, positive bool) error
	SetMicMuted(muted bool) error
	End(ctx context.Context) error
}

// AgentResolver picks the agent for a new session.
type AgentResolver interface {
	Resolve(provided *agents.Identity) (agents.Identity, bool)
}
