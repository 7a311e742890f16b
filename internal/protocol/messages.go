package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies conversational websocket payload variants.
type MessageType string

const (
	TypeInitiationMetadata MessageType = "conversation_initiation_metadata"
	TypePing               MessageType = "ping"
	TypeAudio              MessageType = "audio"
	TypeAgentResponse      MessageType = "agent_response"
	TypeAgentCorrection    MessageType = "agent_response_correction"
	TypeUserTranscript     MessageType = "user_transcript"
	TypeInterruption       MessageType = "interruption"
	TypeVADScore           MessageType = "vad_score"
	TypeError              MessageType = "error"

	TypeInitiationClientData MessageType = "conversation_initiation_client_data"
	TypePong                 MessageType = "pong"
	TypeUserMessage          MessageType = "user_message"
	TypeContextualUpdate     MessageType = "contextual_update"
	TypeUserActivity         MessageType = "user_activity"
	TypeFeedback             MessageType = "feedback"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Server to client.

type InitiationMetadata struct {
	ConversationID         string `json:"conversation_id"`
	AgentOutputAudioFormat string `json:"agent_output_audio_format"`
	UserInputAudioFormat   string `json:"user_input_audio_format"`
}

type Ping struct {
	EventID int  `json:"event_id"`
	PingMs  *int `json:"ping_ms,omitempty"`
}

type Audio struct {
	EventID     int    `json:"event_id"`
	AudioBase64 string `json:"audio_base_64"`
}

type AgentResponse struct {
	Text string `json:"agent_response"`
}

type AgentCorrection struct {
	Original  string `json:"original_agent_response"`
	Corrected string `json:"corrected_agent_response"`
}

type UserTranscript struct {
	Text string `json:"user_transcript"`
}

type Interruption struct {
	EventID int `json:"event_id"`
}

type VADScore struct {
	Score float64 `json:"vad_score"`
}

type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RealtimeType lets the reliability classifier inspect the error code.
func (e ServerError) RealtimeType() string { return e.Code }

func (e ServerError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

type serverFrame struct {
	Type               MessageType         `json:"type"`
	InitiationMetadata *InitiationMetadata `json:"conversation_initiation_metadata_event"`
	Ping               *Ping               `json:"ping_event"`
	Audio              *Audio              `json:"audio_event"`
	AgentResponse      *AgentResponse      `json:"agent_response_event"`
	AgentCorrection    *AgentCorrection    `json:"agent_response_correction_event"`
	UserTranscript     *UserTranscript     `json:"user_transcription_event"`
	Interruption       *Interruption       `json:"interruption_event"`
	VADScore           *VADScore           `json:"vad_score_event"`
	Error              *ServerError        `json:"error_event"`
	Message            string              `json:"message"`
}

// ParseServerMessage decodes one frame into its typed payload. Frames with a
// known type but no payload are rejected.
func ParseServerMessage(raw []byte) (any, error) {
	var f serverFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	missing := func() (any, error) {
		return nil, fmt.Errorf("invalid %s: missing event body", f.Type)
	}
	switch f.Type {
	case TypeInitiationMetadata:
		if f.InitiationMetadata == nil || f.InitiationMetadata.ConversationID == "" {
			return missing()
		}
		return *f.InitiationMetadata, nil
	case TypePing:
		if f.Ping == nil {
			return missing()
		}
		return *f.Ping, nil
	case TypeAudio:
		if f.Audio == nil {
			return missing()
		}
		return *f.Audio, nil
	case TypeAgentResponse:
		if f.AgentResponse == nil {
			return missing()
		}
		return *f.AgentResponse, nil
	case TypeAgentCorrection:
		if f.AgentCorrection == nil {
			return missing()
		}
		return *f.AgentCorrection, nil
	case TypeUserTranscript:
		if f.UserTranscript == nil {
			return missing()
		}
		return *f.UserTranscript, nil
	case TypeInterruption:
		if f.Interruption == nil {
			return missing()
		}
		return *f.Interruption, nil
	case TypeVADScore:
		if f.VADScore == nil {
			return missing()
		}
		return *f.VADScore, nil
	case TypeError:
		if f.Error != nil {
			return *f.Error, nil
		}
		return ServerError{Message: f.Message}, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// Client to server.

type InitiationClientData struct {
	Type             MessageType       `json:"type"`
	UserID           string            `json:"user_id,omitempty"`
	DynamicVariables map[string]string `json:"dynamic_variables,omitempty"`
}

type Pong struct {
	Type    MessageType `json:"type"`
	EventID int         `json:"event_id"`
}

type UserMessage struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

type ContextualUpdate struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

type UserActivity struct {
	Type MessageType `json:"type"`
}

type Feedback struct {
	Type    MessageType `json:"type"`
	Score   string      `json:"score"`
	EventID int         `json:"event_id"`
}

// UserAudioChunk carries base64 PCM16 microphone audio. The frame has no
// type field.
type UserAudioChunk struct {
	AudioBase64 string `json:"user_audio_chunk"`
}

func NewInitiationClientData(userID string) InitiationClientData {
	return InitiationClientData{Type: TypeInitiationClientData, UserID: userID}
}

func NewPong(eventID int) Pong { return Pong{Type: TypePong, EventID: eventID} }

func NewUserMessage(text string) UserMessage {
	return UserMessage{Type: TypeUserMessage, Text: text}
}

func NewContextualUpdate(text string) ContextualUpdate {
	return ContextualUpdate{Type: TypeContextualUpdate, Text: text}
}

func NewUserActivity() UserActivity { return UserActivity{Type: TypeUserActivity} }

func NewFeedback(positive bool, eventID int) Feedback {
	score := "dislike"
	if positive {
		score = "like"
	}
	return Feedback{Type: TypeFeedback, Score: score, EventID: eventID}
}
