package archive

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultMaxSessions = 64

// InMemoryStore keeps the transcripts of the most recent sessions. The
// oldest session is evicted once more than maxSessions are held.
type InMemoryStore struct {
	mu          sync.RWMutex
	maxSessions int
	order       []string
	sessions    map[string][]Record
}

func NewInMemoryStore() *InMemoryStore {
	return NewInMemoryStoreWithLimit(defaultMaxSessions)
}

func NewInMemoryStoreWithLimit(maxSessions int) *InMemoryStore {
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}
	return &InMemoryStore{
		maxSessions: maxSessions,
		sessions:    make(map[string][]Record),
	}
}

func (s *InMemoryStore) SaveTurn(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if _, ok := s.sessions[record.SessionID]; !ok {
		s.order = append(s.order, record.SessionID)
		for len(s.order) > s.maxSessions {
			delete(s.sessions, s.order[0])
			s.order = s.order[1:]
		}
	}
	s.sessions[record.SessionID] = append(s.sessions[record.SessionID], record)
	return nil
}

// SessionTurns returns the last limit turns of a session in order.
func (s *InMemoryStore) SessionTurns(_ context.Context, sessionID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.sessions[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Record, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
