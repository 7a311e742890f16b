package elevenlabs

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const invalidKeyMessage = "Invalid API key or insufficient permissions. Please check your ElevenLabs API key."

type Voice struct {
	VoiceID     string            `json:"voice_id"`
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	Description string            `json:"description,omitempty"`
	PreviewURL  string            `json:"preview_url,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

type listVoicesResponse struct {
	Voices []struct {
		VoiceID     string            `json:"voice_id"`
		Name        string            `json:"name"`
		Category    string            `json:"category"`
		Description *string           `json:"description"`
		PreviewURL  *string           `json:"preview_url"`
		Labels      map[string]string `json:"labels"`
	} `json:"voices"`
}

// ListVoices returns the first page of voices available to the account.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v2/voices", nil)
	if err != nil {
		return nil, err
	}
	var parsed listVoicesResponse
	if err := c.doJSON(req, &parsed); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			apiErr.Message = invalidKeyMessage
		}
		return nil, err
	}

	out := make([]Voice, 0, len(parsed.Voices))
	for _, v := range parsed.Voices {
		voice := Voice{
			VoiceID:  strings.TrimSpace(v.VoiceID),
			Name:     strings.TrimSpace(v.Name),
			Category: strings.TrimSpace(v.Category),
			Labels:   v.Labels,
		}
		if v.Description != nil {
			voice.Description = *v.Description
		}
		if v.PreviewURL != nil {
			voice.PreviewURL = *v.PreviewURL
		}
		out = append(out, voice)
	}
	return out, nil
}
