package memory

import (
	"context"
	"sync"

	"exemplar/internal/vectorstore"
)

// Storage keeps the active snapshot in process memory. Nothing survives a restart.
type Storage struct {
	mu   sync.RWMutex
	snap vectorstore.Snapshot
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Load(_ context.Context) (vectorstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, nil
}

func (s *Storage) Replace(_ context.Context, snap vectorstore.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	return nil
}

func (s *Storage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snap.Entries), nil
}

func (s *Storage) Close() error { return nil }
