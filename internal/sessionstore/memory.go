package sessionstore

import (
	"context"
	"sync"
	"time"

	"storefront-backend/internal/models"
)

// guardSweepInterval bounds how often expired link guards are dropped.
const guardSweepInterval = time.Minute

// MemoryStore is a single-process store used when Redis is not configured.
type MemoryStore struct {
	mu          sync.Mutex
	guards      map[string]time.Time
	lastSweep   time.Time
	subscribers map[string]map[chan models.SessionEvent]struct{}
	now         func() time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		guards:      make(map[string]time.Time),
		subscribers: make(map[string]map[chan models.SessionEvent]struct{}),
		now:         time.Now,
	}
}

func (m *MemoryStore) AcquireLinkGuard(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) >= guardSweepInterval {
		for id, exp := range m.guards {
			if !now.Before(exp) {
				delete(m.guards, id)
			}
		}
		m.lastSweep = now
	}

	if exp, ok := m.guards[sessionID]; ok && now.Before(exp) {
		return false, nil
	}
	m.guards[sessionID] = now.Add(ttl)
	return true, nil
}

// Close is a no-op; it lets MemoryStore stand in for a RedisStore.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Publish(ctx context.Context, event models.SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ch := range m.subscribers[event.SessionID] {
		select {
		case ch <- event:
		default:
			// slow listener; streams re-read the session on their ping tick
		}
	}
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, sessionID string) (<-chan models.SessionEvent, func(), error) {
	ch := make(chan models.SessionEvent, 4)

	m.mu.Lock()
	if m.subscribers[sessionID] == nil {
		m.subscribers[sessionID] = make(map[chan models.SessionEvent]struct{})
	}
	m.subscribers[sessionID][ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(done)
			m.mu.Lock()
			delete(m.subscribers[sessionID], ch)
			if len(m.subscribers[sessionID]) == 0 {
				delete(m.subscribers, sessionID)
			}
			m.mu.Unlock()
			close(ch)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return ch, cancel, nil
}
