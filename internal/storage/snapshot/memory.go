package snapshot

import (
	"context"
	"sync"

	"github.com/autoapply/syncbridge/internal/core/domain"
	"github.com/autoapply/syncbridge/internal/core/ports"
)

// MemoryStore is an in-memory SnapshotStore used in tests and when local
// persistence is disabled.
type MemoryStore struct {
	mu            sync.RWMutex
	interventions []domain.Intervention
	sessions      []domain.Session
}

var _ ports.SnapshotStore = (*MemoryStore)(nil)

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveInterventions(ctx context.Context, items []domain.Intervention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interventions = append([]domain.Intervention(nil), items...)
	return nil
}

func (s *MemoryStore) LoadInterventions(ctx context.Context) ([]domain.Intervention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Intervention(nil), s.interventions...), nil
}

func (s *MemoryStore) SaveSessions(ctx context.Context, items []domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append([]domain.Session(nil), items...)
	return nil
}

func (s *MemoryStore) LoadSessions(ctx context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Session(nil), s.sessions...), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
