package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/echo/internal/agents"
)

type listAgentsResponse struct {
	Agents []struct {
		AgentID          string   `json:"agent_id"`
		Name             string   `json:"name"`
		Tags             []string `json:"tags"`
		CreatedAtUnix    int64    `json:"created_at_unix_secs"`
		LastCallTimeUnix *int64   `json:"last_call_time_unix_secs"`
		Archived         bool     `json:"archived"`
	} `json:"agents"`
	NextCursor *string `json:"next_cursor"`
	HasMore    bool    `json:"has_more"`
}

// ListAgents returns the first page of the agent directory.
func (c *Client) ListAgents(ctx context.Context) ([]agents.Agent, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/convai/agents", nil)
	if err != nil {
		return nil, err
	}
	var parsed listAgentsResponse
	if err := c.doJSON(req, &parsed); err != nil {
		return nil, err
	}

	out := make([]agents.Agent, 0, len(parsed.Agents))
	for _, a := range parsed.Agents {
		agent := agents.Agent{
			ID:          strings.TrimSpace(a.AgentID),
			DisplayName: strings.TrimSpace(a.Name),
			CreatedAt:   time.Unix(a.CreatedAtUnix, 0).UTC(),
			Tags:        a.Tags,
			Archived:    a.Archived,
		}
		if a.LastCallTimeUnix != nil {
			t := time.Unix(*a.LastCallTimeUnix, 0).UTC()
			agent.LastCallTime = &t
		}
		out = append(out, agent)
	}
	return out, nil
}

type createAgentDocument struct {
	Name               string `json:"name"`
	ConversationConfig struct {
		TTS struct {
			ModelID                string `json:"model_id"`
			VoiceID                string `json:"voice_id"`
			AgentOutputAudioFormat string `json:"agent_output_audio_format"`
		} `json:"tts"`
		Agent struct {
			FirstMessage string `json:"first_message"`
			Language     string `json:"language"`
			Prompt       struct {
				Prompt string `json:"prompt"`
				LLM    string `json:"llm"`
			} `json:"prompt"`
		} `json:"agent"`
	} `json:"conversation_config"`
}

func newCreateAgentDocument(req agents.CreateRequest) createAgentDocument {
	var doc createAgentDocument
	doc.Name = req.Name
	doc.ConversationConfig.TTS.ModelID = req.TTSModelID
	doc.ConversationConfig.TTS.VoiceID = req.VoiceID
	doc.ConversationConfig.TTS.AgentOutputAudioFormat = req.OutputFormat
	doc.ConversationConfig.Agent.FirstMessage = req.FirstMessage
	doc.ConversationConfig.Agent.Language = req.Language
	doc.ConversationConfig.Agent.Prompt.Prompt = req.Prompt
	doc.ConversationConfig.Agent.Prompt.LLM = req.LLM
	return doc
}

// CreateAgent posts an agent creation document and returns the new agent id.
func (c *Client) CreateAgent(ctx context.Context, create agents.CreateRequest) (string, error) {
	payload, err := json.Marshal(newCreateAgentDocument(create))
	if err != nil {
		return "", fmt.Errorf("marshal agent: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/convai/agents/create", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		AgentID string `json:"agent_id"`
	}
	if err := c.doJSON(req, &out); err != nil {
		return "", err
	}
	return out.AgentID, nil
}
