package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultAPIBaseURL = "https://api.elevenlabs.io"
	DefaultWSBaseURL  = "wss://api.elevenlabs.io"

	maxErrorBody    = 4 << 10
	maxResponseBody = 2 << 20
)

var ErrMissingAPIKey = errors.New("ElevenLabs API key not configured")

type Config struct {
	APIKey     string
	APIBaseURL string
	WSBaseURL  string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// Client talks to the ElevenLabs REST API and opens conversational
// websocket sessions.
type Client struct {
	apiKey  string
	apiBase string
	wsBase  string
	http    *http.Client
	dialer  *websocket.Dialer
}

func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = DefaultWSBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		apiBase: strings.TrimRight(cfg.APIBaseURL, "/"),
		wsBase:  strings.TrimRight(cfg.WSBaseURL, "/"),
		http:    cfg.HTTPClient,
		dialer:  cfg.Dialer,
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c.apiKey != "" }

// APIError is a non-2xx response. Message is the server's detail text when
// it could be decoded.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("elevenlabs http status %d", e.Status)
	}
	return fmt.Sprintf("%d - %s", e.Status, e.Message)
}

// StatusCode lets the reliability classifier see the HTTP status.
func (e *APIError) StatusCode() int { return e.Status }

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doJSON sends req and decodes a 2xx body into out.
func (c *Client) doJSON(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &APIError{Status: res.StatusCode, Message: errorDetail(body)}
	}
	if out == nil {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorDetail extracts detail.message, detail or message from an error body,
// falling back to the raw text.
func errorDetail(body []byte) string {
	var obj struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &obj); err == nil {
		if len(obj.Detail) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(obj.Detail, &nested); err == nil && nested.Message != "" {
				return nested.Message
			}
			var text string
			if err := json.Unmarshal(obj.Detail, &text); err == nil && text != "" {
				return text
			}
		}
		if obj.Message != "" {
			return obj.Message
		}
	}
	return strings.TrimSpace(string(body))
}
