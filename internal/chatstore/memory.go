package chatstore

import (
	"context"
	"sync"

	"github.com/comigor/dudil-go/internal/history"
)

// MemoryStore keeps histories in process memory. It is the fallback when no
// durable store can be opened; nothing survives a restart.
type MemoryStore struct {
	mu   sync.Mutex
	data history.UserHistories

	// SaveErr, when set, is returned by every Save. Used to simulate a full disk.
	SaveErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: history.UserHistories{}}
}

func (s *MemoryStore) Load(_ context.Context, userID string) (history.ChatHistoryMap, *Quarantine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.data[userID]
	if !ok {
		return history.ChatHistoryMap{}, nil, nil
	}
	return h.Clone(), nil, nil
}

func (s *MemoryStore) Save(_ context.Context, userID string, h history.ChatHistoryMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return &StorageError{Op: "write", Path: "memory", Err: s.SaveErr}
	}
	s.data[userID] = h.Clone()
	return nil
}
