package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/conversation"
	"github.com/ent0n29/echo/internal/logging"
	"github.com/ent0n29/echo/internal/policy"
	"github.com/ent0n29/echo/internal/voiceclone"
)

const saveTimeout = 5 * time.Second

// Journal turns conversation state snapshots into session records. A session
// opens on the first connected snapshot and is saved when a later snapshot
// leaves it.
type Journal struct {
	store  Store
	userID string
	now    func() time.Time
	logger zerolog.Logger

	open *SessionRecord
	// last transcript seen for the open session; snapshots may be dropped.
	lastTranscript []conversation.TranscriptEntry
}

func NewJournal(store Store, userID string, logger zerolog.Logger) *Journal {
	return &Journal{
		store:  store,
		userID: userID,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logging.Component(logger, "history"),
	}
}

// Run consumes snapshots until states closes or ctx ends. An open session is
// saved with reason "shutdown".
func (j *Journal) Run(ctx context.Context, states <-chan conversation.State) {
	for {
		select {
		case <-ctx.Done():
			j.flush(ctx, nil, "shutdown")
			return
		case st, ok := <-states:
			if !ok {
				j.flush(ctx, nil, "shutdown")
				return
			}
			j.Observe(ctx, st)
		}
	}
}

// Observe applies one snapshot.
func (j *Journal) Observe(ctx context.Context, st conversation.State) {
	if j.open != nil && (st.Status != conversation.StatusConnected || st.SessionID != j.open.ConversationID) {
		if st.Status == conversation.StatusDisconnected {
			reason := "ended"
			if st.LastError != "" {
				reason = st.LastError
			}
			j.flush(ctx, st.Transcript, reason)
		} else {
			j.flush(ctx, nil, "superseded")
		}
	}
	if st.Status != conversation.StatusConnected || st.SessionID == "" {
		return
	}
	if j.open == nil {
		j.open = &SessionRecord{
			ConversationID: st.SessionID,
			UserID:         j.userID,
			AgentID:        st.Agent.ID,
			AgentName:      st.Agent.DisplayName,
			StartedAt:      j.now(),
		}
	}
	j.lastTranscript = st.Transcript
}

func (j *Journal) flush(ctx context.Context, transcript []conversation.TranscriptEntry, reason string) {
	if j.open == nil {
		return
	}
	rec := *j.open
	if transcript == nil {
		transcript = j.lastTranscript
	}
	j.open = nil
	j.lastTranscript = nil

	rec.EndedAt = j.now()
	rec.EndReason = reason
	rec.Turns = make([]Turn, 0, len(transcript))
	for _, e := range transcript {
		text, changed := policy.RedactPII(e.Text)
		rec.Turns = append(rec.Turns, Turn{Source: string(e.Source), Text: text, PIIRedacted: changed, At: e.At})
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := j.store.SaveSession(saveCtx, rec); err != nil {
		j.logger.Warn().Err(err).Str("conversation_id", rec.ConversationID).Msg("journal session failed")
		return
	}
	j.logger.Debug().Str("conversation_id", rec.ConversationID).Int("turns", len(rec.Turns)).Msg("session journaled")
}

// VoiceCreated records a created voice. It matches voiceclone.Options.OnCreated.
func (j *Journal) VoiceCreated(ctx context.Context, res voiceclone.Result) {
	rec := VoiceCloneRecord{
		VoiceID:     res.VoiceID,
		Name:        res.Name,
		Description: res.Description,
		CreatedAt:   res.CreatedAt,
	}
	if err := j.store.SaveVoiceClone(context.WithoutCancel(ctx), rec); err != nil {
		j.logger.Warn().Err(err).Str("voice_id", res.VoiceID).Msg("journal voice clone failed")
	}
}
