package agents

import (
	"context"
	"strings"
	"time"
)

// Identity names the agent a conversation is started against.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

func (i Identity) Valid() bool { return strings.TrimSpace(i.ID) != "" }

// Agent is one entry of the agent directory.
type Agent struct {
	ID           string     `json:"id"`
	DisplayName  string     `json:"display_name"`
	CreatedAt    time.Time  `json:"created_at"`
	Tags         []string   `json:"tags,omitempty"`
	Archived     bool       `json:"archived"`
	LastCallTime *time.Time `json:"last_call_time,omitempty"`
}

func (a Agent) Identity() Identity {
	return Identity{ID: a.ID, DisplayName: a.DisplayName}
}

// Directory lists agents. Only the first page is consumed.
type Directory interface {
	ListAgents(ctx context.Context) ([]Agent, error)
}
