package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ReturnStore помнит уже обработанные checkout-сессии.
// Реализации: MemoryStore и redis.ReturnStore.
type ReturnStore interface {
	// MarkConsumed возвращает true, если сессия помечена впервые.
	MarkConsumed(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
	IsConsumed(ctx context.Context, sessionID string) (bool, error)
}

// MemoryStore — ReturnStore в памяти процесса. Просроченные отметки
// игнорируются сразу, а удаляются при Purge (его вызывает планировщик).
type MemoryStore struct {
	clock clockwork.Clock

	mu      sync.Mutex
	expires map[string]time.Time
}

// NewMemoryStore создаёт хранилище. clock может быть nil.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{clock: clock, expires: make(map[string]time.Time)}
}

func (s *MemoryStore) MarkConsumed(_ context.Context, sessionID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if exp, ok := s.expires[sessionID]; ok && now.Before(exp) {
		return false, nil
	}
	s.expires[sessionID] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) IsConsumed(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.expires[sessionID]
	return ok && s.clock.Now().Before(exp), nil
}

// Purge удаляет просроченные отметки и возвращает их число.
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for id, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, id)
			removed++
		}
	}
	return removed
}

// Len — число хранимых отметок.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}
