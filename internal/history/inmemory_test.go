package history

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryRecentSessionsNewestFirst(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"c1", "c2", "c3"} {
		if err := s.SaveSession(ctx, SessionRecord{ConversationID: id, UserID: "u1"}); err != nil {
			t.Fatalf("SaveSession() error = %v", err)
		}
	}
	_ = s.SaveSession(ctx, SessionRecord{ConversationID: "other", UserID: "u2"})

	got, err := s.RecentSessions(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("RecentSessions() error = %v", err)
	}
	if len(got) != 2 || got[0].ConversationID != "c3" || got[1].ConversationID != "c2" {
		t.Fatalf("RecentSessions() = %+v", got)
	}
	if got[0].ID == "" || got[0].EndedAt.IsZero() {
		t.Fatalf("SaveSession() did not assign id and end time: %+v", got[0])
	}
}

func TestInMemoryVoiceClones(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_ = s.SaveVoiceClone(ctx, VoiceCloneRecord{VoiceID: "v1", Name: "First", CreatedAt: created})
	_ = s.SaveVoiceClone(ctx, VoiceCloneRecord{VoiceID: "v2", Name: "Second"})

	got, err := s.RecentVoiceClones(ctx, 0)
	if err != nil {
		t.Fatalf("RecentVoiceClones() error = %v", err)
	}
	if len(got) != 2 || got[0].VoiceID != "v2" || !got[1].CreatedAt.Equal(created) {
		t.Fatalf("RecentVoiceClones() = %+v", got)
	}
}

func TestNewStoreWithoutDatabaseURL(t *testing.T) {
	s, err := NewStore(context.Background(), "  ")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("NewStore() = %T, want *InMemoryStore", s)
	}
}
