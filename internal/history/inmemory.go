package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps the journal in process for local use.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]SessionRecord
	clones   []VoiceCloneRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]SessionRecord)}
}

func (s *InMemoryStore) SaveSession(_ context.Context, record SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now().UTC()
	}
	record.Turns = append([]Turn(nil), record.Turns...)
	s.sessions[record.UserID] = append(s.sessions[record.UserID], record)
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (s *InMemoryStore) RecentSessions(_ context.Context, userID string, limit int) ([]SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.sessions[userID]
	return newestFirst(arr, limit), nil
}

func (s *InMemoryStore) SaveVoiceClone(_ context.Context, record VoiceCloneRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.clones = append(s.clones, record)
	return nil
}

func (s *InMemoryStore) RecentVoiceClones(_ context.Context, limit int) ([]VoiceCloneRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.clones, limit), nil
}

func (s *InMemoryStore) Close() error { return nil }

func newestFirst[T any](arr []T, limit int) []T {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]T, 0, limit)
	for i := len(arr) - 1; i >= len(arr)-limit; i-- {
		out = append(out, arr[i])
	}
	return out
}
