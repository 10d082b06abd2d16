package presence

import (
	"context"
	"sync"
	"time"

	"community-chat/internal/apperr"
	"community-chat/internal/identity"
)

// MemoryStore is the Redis-free Store used in dev mode and tests. Same
// semantics, maps and a mutex instead of hashes.
type MemoryStore struct {
	mu       sync.Mutex
	typing   map[int]map[identity.Participant]time.Time
	presence map[identity.Participant]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		typing:   make(map[int]map[identity.Participant]time.Time),
		presence: make(map[identity.Participant]Record),
	}
}

func (s *MemoryStore) UpsertTyping(_ context.Context, conversationID int, p identity.Participant, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.typing[conversationID]
	if !ok {
		rows = make(map[identity.Participant]time.Time)
		s.typing[conversationID] = rows
	}
	rows[p] = at
	return nil
}

func (s *MemoryStore) DeleteTyping(_ context.Context, conversationID int, p identity.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.typing[conversationID], p)
	return nil
}

func (s *MemoryStore) Typing(_ context.Context, conversationID int) ([]TypingRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]TypingRow, 0, len(s.typing[conversationID]))
	for p, at := range s.typing[conversationID] {
		rows = append(rows, TypingRow{Participant: p, StartedAt: at})
	}
	return rows, nil
}

func (s *MemoryStore) PurgeTyping(_ context.Context, conversationID int, olderThan time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p, at := range s.typing[conversationID] {
		if at.Before(olderThan) {
			delete(s.typing[conversationID], p)
		}
	}
	return nil
}

func (s *MemoryStore) UpsertPresence(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[rec.Participant] = rec
	return nil
}

func (s *MemoryStore) GetPresence(_ context.Context, p identity.Participant) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.presence[p]
	if !ok {
		return Record{}, apperr.ErrNotFound
	}
	return rec, nil
}
