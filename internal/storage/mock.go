package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nightline-game/nightline/pkg/scenario"
	"github.com/nightline-game/nightline/pkg/state"
)

// MockStorage is a mock implementation of Storage for testing
type MockStorage struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]*state.SessionState
	progress  map[string]*state.Progress
	nights    map[string]*scenario.Night
	pingError error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		sessions: make(map[uuid.UUID]*state.SessionState),
		progress: make(map[string]*state.Progress),
		nights:   make(map[string]*scenario.Night),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// AddNight registers a night under a filename for GetNight and ListNights
func (m *MockStorage) AddNight(filename string, n *scenario.Night) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nights[filename] = n
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) SaveSession(ctx context.Context, id uuid.UUID, gs *state.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gs.UpdatedAt = time.Now()
	m.sessions[id] = gs
	return nil
}

func (m *MockStorage) LoadSession(ctx context.Context, id uuid.UUID) (*state.SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id], nil
}

func (m *MockStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MockStorage) SaveProgress(ctx context.Context, profile string, p *state.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[profile] = p
	return nil
}

func (m *MockStorage) LoadProgress(ctx context.Context, profile string) (*state.Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.progress[profile]; ok {
		return p, nil
	}
	return &state.Progress{}, nil
}

func (m *MockStorage) ListNights(ctx context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.nights))
	for filename, n := range m.nights {
		out[n.Name] = filename
	}
	return out, nil
}

func (m *MockStorage) GetNight(ctx context.Context, filename string) (*scenario.Night, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.nights[filename]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("night not found: %s", filename)
}
