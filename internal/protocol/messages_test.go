package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseServerMessageInitiationMetadata(t *testing.T) {
	raw := []byte(`{"type":"conversation_initiation_metadata","conversation_initiation_metadata_event":{"conversation_id":"conv_1","agent_output_audio_format":"pcm_16000","user_input_audio_format":"pcm_16000"}}`)
	msg, err := ParseServerMessage(raw)
	if err != nil {
		t.Fatalf("ParseServerMessage() error = %v", err)
	}
	meta, ok := msg.(InitiationMetadata)
	if !ok {
		t.Fatalf("message type = %T, want InitiationMetadata", msg)
	}
	if meta.ConversationID != "conv_1" || meta.AgentOutputAudioFormat != "pcm_16000" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestParseServerMessageEvents(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"ping", `{"type":"ping","ping_event":{"event_id":7}}`, Ping{EventID: 7}},
		{"audio", `{"type":"audio","audio_event":{"event_id":3,"audio_base_64":"AQID"}}`, Audio{EventID: 3, AudioBase64: "AQID"}},
		{"agent", `{"type":"agent_response","agent_response_event":{"agent_response":"Hi!"}}`, AgentResponse{Text: "Hi!"}},
		{"user", `{"type":"user_transcript","user_transcription_event":{"user_transcript":"hello"}}`, UserTranscript{Text: "hello"}},
		{"interruption", `{"type":"interruption","interruption_event":{"event_id":9}}`, Interruption{EventID: 9}},
		{"error", `{"type":"error","message":"quota exceeded"}`, ServerError{Message: "quota exceeded"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServerMessage([]byte(tt.raw))
			if err != nil {
				t.Fatalf("ParseServerMessage() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseServerMessage() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseServerMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseServerMessage([]byte(`{"type":"client_tool_call"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseServerMessageRejectsMissingBody(t *testing.T) {
	if _, err := ParseServerMessage([]byte(`{"type":"audio"}`)); err == nil {
		t.Fatalf("ParseServerMessage() error = nil, want missing body error")
	}
	if _, err := ParseServerMessage([]byte(`not json`)); err == nil {
		t.Fatalf("ParseServerMessage() error = nil, want envelope error")
	}
}

func TestClientMessagesEncode(t *testing.T) {
	tests := []struct {
		msg  any
		want string
	}{
		{NewPong(7), `{"type":"pong","event_id":7}`},
		{NewUserMessage("hello"), `{"type":"user_message","text":"hello"}`},
		{NewContextualUpdate("on page 2"), `{"type":"contextual_update","text":"on page 2"}`},
		{NewUserActivity(), `{"type":"user_activity"}`},
		{NewFeedback(true, 4), `{"type":"feedback","score":"like","event_id":4}`},
		{NewFeedback(false, 4), `{"type":"feedback","score":"dislike","event_id":4}`},
		{UserAudioChunk{AudioBase64: "AQID"}, `{"user_audio_chunk":"AQID"}`},
		{NewInitiationClientData("demo-user"), `{"type":"conversation_initiation_client_data","user_id":"demo-user"}`},
	}
	for _, tt := range tests {
		got, err := json.Marshal(tt.msg)
		if err != nil {
			t.Fatalf("Marshal(%T) error = %v", tt.msg, err)
		}
		if string(got) != tt.want {
			t.Fatalf("Marshal(%T) = %s, want %s", tt.msg, got, tt.want)
		}
	}
}
