package engine

import (
	"context"
	"sync"

	"leverager/internal/core"
)

// MemoryStore is an in-memory IStateStore for tests and ephemeral runs.
type MemoryStore struct {
	mu    sync.Mutex
	state *core.EngineState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveState(ctx context.Context, state *core.EngineState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *state
	s.state = &copied
	return nil
}

func (s *MemoryStore) LoadState(ctx context.Context) (*core.EngineState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	copied := *s.state
	return &copied, nil
}
