package session

import (
	"context"
	"sync"

	"till-service/internal/models"
)

// MemoryStore keeps tokens and cart snapshots for the life of the process only.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]string
	carts  map[string][]models.CartLine
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]string),
		carts:  make(map[string][]models.CartLine),
	}
}

func (m *MemoryStore) LoadToken(_ context.Context, tillID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[tillID], nil
}

func (m *MemoryStore) SaveToken(_ context.Context, tillID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tillID] = token
	return nil
}

func (m *MemoryStore) ClearToken(_ context.Context, tillID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, tillID)
	return nil
}

func (m *MemoryStore) SaveCart(_ context.Context, sessionID string, lines []models.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[sessionID] = append([]models.CartLine(nil), lines...)
	return nil
}

// LoadCart returns nil when no snapshot exists for sessionID.
func (m *MemoryStore) LoadCart(_ context.Context, sessionID string) ([]models.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines, ok := m.carts[sessionID]
	if !ok {
		return nil, nil
	}
	return append([]models.CartLine(nil), lines...), nil
}

func (m *MemoryStore) DeleteCart(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, sessionID)
	return nil
}
