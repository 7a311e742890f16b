package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/agents"
	"github.com/ent0n29/echo/internal/lifecycle"
	"github.com/ent0n29/echo/internal/observability"
	"github.com/ent0n29/echo/internal/policy"
)

const (
	defaultEndGrace   = 3 * time.Second
	maxTranscript     = 50
	subscriberBacklog = 16
	logTextRunes      = 120
)

type Options struct {
	Capability Capability
	Agents     AgentResolver
	UserID     string
	EndGrace   time.Duration
	Clock      lifecycle.Clock
	Metrics    *observability.Metrics
	Logger     zerolog.Logger
}

// Controller owns at most one live conversation session. State is mutated
// only under mu; capability calls are made outside it with the matching
// in-flight guard held.
type Controller struct {
	capability Capability
	agents     AgentResolver
	userID     string
	endGrace   time.Duration
	clock      lifecycle.Clock
	metrics    *observability.Metrics
	logger     zerolog.Logger

	starting lifecycle.OperationInFlight
	ending   lifecycle.OperationInFlight
	muting   lifecycle.OperationInFlight
	feedback lifecycle.OperationInFlight

	mu      sync.Mutex
	state   State
	current *liveSession
	gen     uint64
	closed  bool
	subs    map[int]chan State
	nextSub int
}

type liveSession struct {
	handle Handle
	gen    uint64
	done   chan struct{}
}

func NewController(opts Options) *Controller {
	if opts.EndGrace <= 0 {
		opts.EndGrace = defaultEndGrace
	}
	if opts.Clock == nil {
		opts.Clock = lifecycle.SystemClock{}
	}
	return &Controller{
		capability: opts.Capability,
		agents:     opts.Agents,
		userID:     opts.UserID,
		endGrace:   opts.EndGrace,
		clock:      opts.Clock,
		metrics:    opts.Metrics,
		logger:     opts.Logger.With().Str("component", "conversation").Logger(),
		state:      State{Status: StatusDisconnected},
		subs:       make(map[int]chan State),
	}
}

// Start opens a session for the resolved agent. It returns once the
// capability has accepted the start; the transition to connected arrives
// through the event stream.
func (c *Controller) Start(ctx context.Context, provided *agents.Identity) error {
	const op = "start conversation"
	if !c.starting.TryAcquire() {
		return c.reject("start", op, "start already in flight")
	}
	defer c.starting.Release()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.reject("start", op, "controller closed")
	}
	if c.state.Status != StatusDisconnected || c.current != nil {
		c.mu.Unlock()
		return c.reject("start", op, "session already active")
	}
	agent, ok := c.agents.Resolve(provided)
	if !ok {
		c.mu.Unlock()
		return c.reject("start", op, "no agent selected")
	}
	c.gen++
	gen := c.gen
	c.state = State{
		Status: StatusConnecting,
		Agent:  agent,
		Input:  c.state.Input,
	}
	c.sessionEvent("connecting")
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info().Str("agent_id", agent.ID).Msg("starting conversation")
	started := time.Now()
	handle, err := c.capability.Start(ctx, StartRequest{AgentID: agent.ID, UserID: c.userID})
	c.metrics.ObserveCapability("conversation", "start", started, err)

	c.mu.Lock()
	if err != nil {
		if c.gen == gen && c.current == nil {
			c.state.Status = StatusDisconnected
			c.state.SessionID = ""
			c.state.LastError = lifecycle.Message(err)
			c.sessionEvent("start_failed")
			c.publishLocked()
		}
		c.mu.Unlock()
		c.logger.Error().Err(err).Str("agent_id", agent.ID).Msg("conversation start failed")
		return lifecycle.Capability(op, err)
	}
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		_ = handle.End(context.WithoutCancel(ctx))
		return lifecycle.Precondition(op, "session superseded")
	}
	sess := &liveSession{handle: handle, gen: gen, done: make(chan struct{})}
	c.current = sess
	c.mu.Unlock()

	go c.consume(sess)
	return nil
}

// End asks the capability to close the session and waits up to the end
// grace for it to report disconnected. If the report never arrives the
// session is reset locally.
func (c *Controller) End(ctx context.Context) error {
	const op = "end conversation"
	if !c.ending.TryAcquire() {
		return c.reject("end", op, "end already in flight")
	}
	defer c.ending.Release()

	sess, err := c.connectedSession("end", op)
	if err != nil {
		return err
	}

	started := time.Now()
	err = sess.handle.End(ctx)
	c.metrics.ObserveCapability("conversation", "end", started, err)
	if err != nil {
		c.mu.Lock()
		if c.current == sess {
			c.state.LastError = lifecycle.Message(err)
			c.publishLocked()
		}
		c.mu.Unlock()
		c.logger.Error().Err(err).Msg("conversation end failed")
		return lifecycle.Capability(op, err)
	}

	timer := c.clock.NewTimer(c.endGrace)
	defer timer.Stop()

	var reason string
	select {
	case <-sess.done:
		return nil
	case <-timer.C():
		reason = "end_grace_elapsed"
	case <-ctx.Done():
		reason = "end_cancelled"
	}

	c.mu.Lock()
	if c.current == sess {
		c.logger.Warn().Str("reason", reason).Msg("no disconnect reported, resetting session locally")
		c.teardownLocked(reason)
	}
	c.mu.Unlock()
	return nil
}

func (c *Controller) SetMicMuted(muted bool) error {
	const op = "set mic muted"
	if !c.muting.TryAcquire() {
		return c.reject("mute", op, "mute already in flight")
	}
	defer c.muting.Release()
	return c.setMicMuted(op, func(bool) bool { return muted })
}

func (c *Controller) ToggleMicMuted() error {
	const op = "toggle mic muted"
	if !c.muting.TryAcquire() {
		return c.reject("mute", op, "mute already in flight")
	}
	defer c.muting.Release()
	return c.setMicMuted(op, func(current bool) bool { return !current })
}

func (c *Controller) setMicMuted(op string, next func(bool) bool) error {
	c.mu.Lock()
	if c.state.Status != StatusConnected || c.current == nil {
		c.mu.Unlock()
		return c.reject("mute", op, "no connected session")
	}
	sess := c.current
	muted := next(c.state.IsMicMuted)
	c.mu.Unlock()

	started := time.Now()
	err := sess.handle.SetMicMuted(muted)
	c.metrics.ObserveCapability("conversation", "mute", started, err)
	if err != nil {
		return lifecycle.Capability(op, err)
	}

	c.mu.Lock()
	if c.current == sess {
		c.state.IsMicMuted = muted
		c.publishLocked()
	}
	c.mu.Unlock()
	return nil
}

// SendMessage forwards text as a user message and clears the input buffer.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	return c.send(ctx, "send message", text, true)
}

// SendContext forwards text as a contextual update the agent does not speak to.
func (c *Controller) SendContext(ctx context.Context, text string) error {
	return c.send(ctx, "send context", text, false)
}

func (c *Controller) SubmitMessage(ctx context.Context) error {
	return c.SendMessage(ctx, c.State().Input)
}

func (c *Controller) SubmitContext(ctx context.Context) error {
	return c.SendContext(ctx, c.State().Input)
}

func (c *Controller) send(ctx context.Context, op, text string, asMessage bool) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return c.reject("send", op, "text is empty")
	}
	sess, err := c.connectedSession("send", op)
	if err != nil {
		return err
	}

	started := time.Now()
	if asMessage {
		err = sess.handle.SendUserMessage(ctx, trimmed)
	} else {
		err = sess.handle.SendContextualUpdate(ctx, trimmed)
	}
	c.metrics.ObserveCapability("conversation", "send", started, err)
	if err != nil {
		return lifecycle.Capability(op, err)
	}

	c.mu.Lock()
	if c.current == sess {
		c.state.Input = ""
		if asMessage {
			c.appendTranscriptLocked(SourceUser, trimmed)
		}
		c.publishLocked()
	}
	c.mu.Unlock()
	c.logger.Debug().Bool("message", asMessage).Str("text", policy.LogSafe(trimmed, logTextRunes)).Msg("text forwarded")
	return nil
}

// SetInput replaces the local input buffer. While connected a non-empty
// buffer also signals user activity.
func (c *Controller) SetInput(ctx context.Context, text string) error {
	c.mu.Lock()
	c.state.Input = text
	c.publishLocked()
	connected := c.state.Status == StatusConnected && c.current != nil
	c.mu.Unlock()

	if connected && strings.TrimSpace(text) != "" {
		return c.OnUserActivity(ctx)
	}
	return nil
}

// OnUserActivity forwards a liveness signal. It is a no-op when no session
// is connected.
func (c *Controller) OnUserActivity(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Status != StatusConnected || c.current == nil {
		c.mu.Unlock()
		return nil
	}
	sess := c.current
	c.mu.Unlock()

	if err := sess.handle.SendUserActivity(ctx); err != nil {
		return lifecycle.Capability("user activity", err)
	}
	return nil
}

// SendFeedback rates the last agent response. Availability is cleared after
// a successful send until the capability reports it again.
func (c *Controller) SendFeedback(ctx context.Context, positive bool) error {
	const op = "send feedback"
	if !c.feedback.TryAcquire() {
		return c.reject("feedback", op, "feedback already in flight")
	}
	defer c.feedback.Release()

	c.mu.Lock()
	if c.state.Status != StatusConnected || c.current == nil {
		c.mu.Unlock()
		return c.reject("feedback", op, "no connected session")
	}
	if !c.state.CanSendFeedback {
		c.mu.Unlock()
		return c.reject("feedback", op, "feedback not available")
	}
	sess := c.current
	c.mu.Unlock()

	started := time.Now()
	err := sess.handle.SendFeedback(ctx, positive)
	c.metrics.ObserveCapability("conversation", "feedback", started, err)
	if err != nil {
		return lifecycle.Capability(op, err)
	}

	c.mu.Lock()
	if c.current == sess {
		c.state.CanSendFeedback = false
		c.publishLocked()
	}
	c.mu.Unlock()
	return nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

func (c *Controller) Starting() bool { return c.starting.Busy() }

func (c *Controller) Ending() bool { return c.ending.Busy() }

// Subscribe returns a channel receiving a snapshot after every state change,
// starting with the current one. Slow subscribers lose the oldest snapshots.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, subscriberBacklog)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.state.clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close ends any live session and releases subscribers. Further intents are
// rejected.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	sess := c.current
	if sess != nil || c.state.Status != StatusDisconnected {
		c.teardownLocked("closed")
	}
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	if sess == nil {
		return nil
	}
	if err := sess.handle.End(ctx); err != nil {
		return lifecycle.Capability("close conversation", err)
	}
	return nil
}

func (c *Controller) consume(sess *liveSession) {
	for ev := range sess.handle.Events() {
		c.dispatch(sess, ev)
	}
	c.dispatch(sess, Disconnected{Reason: "transport_closed"})
}

// dispatch applies one event from sess. Events from a session that is no
// longer current are dropped.
func (c *Controller) dispatch(sess *liveSession, ev Event) {
	c.mu.Lock()
	if sess != c.current {
		c.mu.Unlock()
		c.logger.Debug().Str("kind", ev.kind()).Msg("dropping event from stale session")
		return
	}
	if c.metrics != nil {
		c.metrics.ConversationEvents.WithLabelValues(ev.kind()).Inc()
	}

	var release Handle
	switch e := ev.(type) {
	case Connected:
		c.connectLocked(sess, e.ConversationID)
	case Disconnected:
		c.teardownLocked(e.Reason)
	case Error:
		c.state.LastError = e.Message
		c.logger.Error().Str("message", e.Message).Bool("fatal", e.Fatal).Msg("conversation error reported")
		if e.Fatal || c.state.Status == StatusConnecting {
			release = sess.handle
			c.teardownLocked("error")
		} else {
			c.publishLocked()
		}
	case ModeChanged:
		if c.state.Status == StatusConnected && c.state.IsSpeaking != e.Speaking {
			c.state.IsSpeaking = e.Speaking
			c.publishLocked()
		}
	case FeedbackAvailability:
		if c.state.Status == StatusConnected && c.state.CanSendFeedback != e.Available {
			c.state.CanSendFeedback = e.Available
			c.publishLocked()
		}
	case Message:
		if strings.TrimSpace(e.Text) != "" {
			c.appendTranscriptLocked(e.Source, e.Text)
			c.publishLocked()
		}
	}
	c.mu.Unlock()

	if release != nil {
		// The transport may be blocked delivering to this goroutine.
		go func() { _ = release.End(context.Background()) }()
	}
}

func (c *Controller) connectLocked(sess *liveSession, id string) {
	if id == "" {
		id = sess.handle.ID()
	}
	if id == "" {
		// A connected session always carries its id.
		c.logger.Warn().Msg("connect reported without a conversation id, still connecting")
		return
	}
	if c.state.Status == StatusConnected {
		if id != c.state.SessionID {
			c.state.SessionID = id
			c.publishLocked()
		}
		return
	}
	c.state.Status = StatusConnected
	c.state.SessionID = id
	if c.metrics != nil {
		c.metrics.ActiveSessions.Inc()
	}
	c.sessionEvent("connected")
	c.logger.Info().Str("session_id", id).Str("agent_id", c.state.Agent.ID).Msg("conversation connected")
	c.publishLocked()
}

func (c *Controller) teardownLocked(reason string) {
	if c.current != nil {
		close(c.current.done)
		c.current = nil
	}
	if c.state.Status == StatusConnected && c.metrics != nil {
		c.metrics.ActiveSessions.Dec()
	}
	c.state.Status = StatusDisconnected
	c.state.SessionID = ""
	c.state.IsSpeaking = false
	c.state.CanSendFeedback = false
	c.sessionEvent("disconnected")
	c.logger.Info().Str("reason", reason).Msg("conversation disconnected")
	c.publishLocked()
}

func (c *Controller) appendTranscriptLocked(source Source, text string) {
	c.state.Transcript = append(c.state.Transcript, TranscriptEntry{
		Source: source,
		Text:   text,
		At:     c.clock.Now(),
	})
	if n := len(c.state.Transcript); n > maxTranscript {
		c.state.Transcript = append([]TranscriptEntry(nil), c.state.Transcript[n-maxTranscript:]...)
	}
}

func (c *Controller) publishLocked() {
	snap := c.state.clone()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (c *Controller) connectedSession(metricOp, op string) (*liveSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Status != StatusConnected || c.current == nil {
		c.metrics.ObserveRejection("conversation", metricOp)
		return nil, lifecycle.Precondition(op, "no connected session")
	}
	return c.current, nil
}

func (c *Controller) reject(metricOp, op, reason string) error {
	c.metrics.ObserveRejection("conversation", metricOp)
	c.logger.Debug().Str("op", op).Str("reason", reason).Msg("intent rejected")
	return lifecycle.Precondition(op, reason)
}

func (c *Controller) sessionEvent(event string) {
	if c.metrics == nil {
		return
	}
	c.metrics.SessionEvents.WithLabelValues(event).Inc()
}
