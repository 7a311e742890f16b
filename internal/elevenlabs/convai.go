package elevenlabs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/conversation"
	"github.com/ent0n29/echo/internal/protocol"
)

const (
	defaultSpeakingIdle = 400 * time.Millisecond
	writeTimeout        = 5 * time.Second
	micChunkBytes       = 3200 // 100 ms of PCM16 mono at 16 kHz
)

var errConversationClosed = errors.New("conversation closed")

// AudioIO supplies the microphone and speaker streams of a conversation.
// Both carry PCM16LE mono at 16 kHz.
type AudioIO interface {
	OpenMicrophone(ctx context.Context) (io.ReadCloser, error)
	OpenSpeaker(ctx context.Context) (io.WriteCloser, error)
}

type ConversationOptions struct {
	// Audio is optional; without it the session is text only.
	Audio        AudioIO
	SpeakingIdle time.Duration
	Logger       zerolog.Logger
}

// Conversations opens Conversational AI websocket sessions.
type Conversations struct {
	client       *Client
	audio        AudioIO
	speakingIdle time.Duration
	logger       zerolog.Logger
}

func (c *Client) Conversations(opts ConversationOptions) *Conversations {
	if opts.SpeakingIdle <= 0 {
		opts.SpeakingIdle = defaultSpeakingIdle
	}
	return &Conversations{
		client:       c,
		audio:        opts.Audio,
		speakingIdle: opts.SpeakingIdle,
		logger:       opts.Logger.With().Str("component", "convai").Logger(),
	}
}

func (c *Conversations) Start(ctx context.Context, req conversation.StartRequest) (conversation.Handle, error) {
	if strings.TrimSpace(req.AgentID) == "" {
		return nil, errors.New("agent_id is required")
	}
	u, err := url.Parse(c.client.wsBase + "/v1/convai/conversation")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("agent_id", req.AgentID)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	if c.client.apiKey != "" {
		headers.Set("xi-api-key", c.client.apiKey)
	}
	conn, res, err := c.client.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if res != nil {
			return nil, &APIError{Status: res.StatusCode, Message: "dial conversation websocket: " + err.Error()}
		}
		return nil, fmt.Errorf("dial conversation websocket: %w", err)
	}

	s := &session{
		conn:         conn,
		events:       make(chan conversation.Event, 64),
		incoming:     make(chan any, 64),
		feedbackSent: make(chan struct{}, 1),
		done:         make(chan struct{}),
		speakingIdle: c.speakingIdle,
		logger:       c.logger.With().Str("agent_id", req.AgentID).Logger(),
	}
	if err := s.writeJSON(protocol.NewInitiationClientData(req.UserID)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send initiation data: %w", err)
	}

	if c.audio != nil {
		if s.speaker, err = c.audio.OpenSpeaker(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("open speaker: %w", err)
		}
		if s.mic, err = c.audio.OpenMicrophone(ctx); err != nil {
			_ = s.speaker.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("open microphone: %w", err)
		}
		go s.pumpMicrophone()
	}

	go s.readLoop()
	go s.run()
	return s, nil
}

type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	mic     io.ReadCloser
	speaker io.WriteCloser

	events       chan conversation.Event
	incoming     chan any
	feedbackSent chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
	readErr      error

	id             atomic.Value
	currentEventID atomic.Int64
	lastFeedbackID atomic.Int64
	muted          atomic.Bool
	endedLocally   atomic.Bool

	speakingIdle time.Duration
	logger       zerolog.Logger
}

func (s *session) ID() string {
	id, _ := s.id.Load().(string)
	return id
}

func (s *session) Events() <-chan conversation.Event { return s.events }

func (s *session) SendUserMessage(_ context.Context, text string) error {
	return s.writeJSON(protocol.NewUserMessage(text))
}

func (s *session) SendContextualUpdate(_ context.Context, text string) error {
	return s.writeJSON(protocol.NewContextualUpdate(text))
}

func (s *session) SendUserActivity(context.Context) error {
	return s.writeJSON(protocol.NewUserActivity())
}

func (s *session) SendFeedback(_ context.Context, positive bool) error {
	eventID := s.currentEventID.Load()
	if eventID <= s.lastFeedbackID.Load() {
		return errors.New("no agent response to rate")
	}
	if err := s.writeJSON(protocol.NewFeedback(positive, int(eventID))); err != nil {
		return err
	}
	s.lastFeedbackID.Store(eventID)
	select {
	case s.feedbackSent <- struct{}{}:
	default:
	}
	return nil
}

// SetMicMuted stops forwarding microphone audio. Capture keeps running so
// unmuting is immediate.
func (s *session) SetMicMuted(muted bool) error {
	s.muted.Store(muted)
	return nil
}

// End closes the websocket. The read loop observes the close and the event
// stream reports Disconnected.
func (s *session) End(context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.endedLocally.Store(true)
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "end_session"),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
		if s.mic != nil {
			_ = s.mic.Close()
		}
	})
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (s *session) writeJSON(v any) error {
	select {
	case <-s.done:
		return errConversationClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *session) readLoop() {
	defer close(s.incoming)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.readErr = err
			return
		}
		msg, err := protocol.ParseServerMessage(data)
		if err != nil {
			if !errors.Is(err, protocol.ErrUnsupportedType) {
				s.logger.Debug().Err(err).Msg("dropping malformed frame")
			}
			continue
		}
		s.incoming <- msg
	}
}

// run owns every write to events and closes it when the transport ends.
func (s *session) run() {
	idle := time.NewTimer(s.speakingIdle)
	idle.Stop()
	defer idle.Stop()

	var speaking, feedbackAvailable bool
	setSpeaking := func(v bool) {
		if speaking != v {
			speaking = v
			s.events <- conversation.ModeChanged{Speaking: v}
		}
	}

	defer func() {
		if s.mic != nil {
			_ = s.mic.Close()
		}
		if s.speaker != nil {
			_ = s.speaker.Close()
		}
		close(s.events)
	}()

	for {
		select {
		case <-idle.C:
			setSpeaking(false)
		case <-s.feedbackSent:
			if feedbackAvailable {
				feedbackAvailable = false
				s.events <- conversation.FeedbackAvailability{Available: false}
			}
		case msg, ok := <-s.incoming:
			if !ok {
				s.finish()
				return
			}
			switch m := msg.(type) {
			case protocol.InitiationMetadata:
				s.id.Store(m.ConversationID)
				s.logger.Info().Str("conversation_id", m.ConversationID).Msg("conversation initiated")
				s.events <- conversation.Connected{ConversationID: m.ConversationID}
			case protocol.Ping:
				if err := s.writeJSON(protocol.NewPong(m.EventID)); err != nil && !errors.Is(err, errConversationClosed) {
					s.logger.Warn().Err(err).Msg("pong failed")
				}
			case protocol.Audio:
				s.playAudio(m.AudioBase64)
				if int64(m.EventID) > s.currentEventID.Load() {
					s.currentEventID.Store(int64(m.EventID))
				}
				setSpeaking(true)
				idle.Reset(s.speakingIdle)
				if avail := s.currentEventID.Load() > s.lastFeedbackID.Load(); avail != feedbackAvailable {
					feedbackAvailable = avail
					s.events <- conversation.FeedbackAvailability{Available: avail}
				}
			case protocol.AgentResponse:
				s.events <- conversation.Message{Source: conversation.SourceAgent, Text: m.Text}
			case protocol.AgentCorrection:
				s.logger.Debug().Msg("agent response corrected")
			case protocol.UserTranscript:
				s.events <- conversation.Message{Source: conversation.SourceUser, Text: m.Text}
			case protocol.Interruption:
				idle.Stop()
				setSpeaking(false)
			case protocol.ServerError:
				s.events <- conversation.Error{Message: m.Error()}
			}
		}
	}
}

func (s *session) finish() {
	if s.endedLocally.Load() {
		s.events <- conversation.Disconnected{Reason: "ended"}
		return
	}
	err := s.readErr
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.events <- conversation.Disconnected{Reason: "remote_closed"}
		return
	}
	s.logger.Warn().Err(err).Msg("conversation transport failed")
	s.events <- conversation.Error{Message: "connection lost: " + errorText(err), Fatal: true}
}

func (s *session) playAudio(b64 string) {
	if s.speaker == nil || b64 == "" {
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		s.logger.Debug().Err(err).Msg("invalid agent audio chunk")
		return
	}
	if _, err := s.speaker.Write(pcm); err != nil {
		s.logger.Warn().Err(err).Msg("speaker write failed")
	}
}

func (s *session) pumpMicrophone() {
	buf := make([]byte, micChunkBytes)
	for {
		n, err := io.ReadFull(s.mic, buf)
		if n > 0 && !s.muted.Load() {
			chunk := protocol.UserAudioChunk{AudioBase64: base64.StdEncoding.EncodeToString(buf[:n])}
			if werr := s.writeJSON(chunk); werr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !s.endedLocally.Load() {
				s.logger.Warn().Err(err).Msg("microphone read failed")
			}
			return
		}
	}
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
