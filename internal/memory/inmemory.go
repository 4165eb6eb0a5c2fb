package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use. It backs
// both the conversation log and the caller handoff.
type InMemoryStore struct {
	mu      sync.RWMutex
	turns   map[string][]TurnRecord
	callers map[string]CallerRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		turns:   make(map[string][]TurnRecord),
		callers: make(map[string]CallerRecord),
	}
}

func (s *InMemoryStore) SaveTurn(_ context.Context, record TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.turns[record.SessionID] = append(s.turns[record.SessionID], record)
	return nil
}

func (s *InMemoryStore) RecentTurns(_ context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]TurnRecord, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) PutCaller(_ context.Context, record CallerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.callers[record.CallSID] = record
	return nil
}

func (s *InMemoryStore) GetCaller(_ context.Context, callSID string) (CallerRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.callers[callSID]
	return r, ok, nil
}

func (s *InMemoryStore) DeleteCaller(_ context.Context, callSID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.callers, callSID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
