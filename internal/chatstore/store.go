// Package chatstore persists users' archived chats.
//
// Stores never fail a Load because the persisted data is corrupt: the bad
// file is renamed aside (quarantined), an empty history is returned and the
// caller is told what happened through a *Quarantine. I/O failures are
// returned as *StorageError so callers can degrade to in-memory operation.
package chatstore

import (
	"context"
	"fmt"

	"github.com/comigor/dudil-go/internal/history"
)

// Store loads and saves one user's chat history.
type Store interface {
	// Load returns the user's chats. A missing store yields an empty map.
	Load(ctx context.Context, userID string) (history.ChatHistoryMap, *Quarantine, error)

	// Save replaces the user's chats with h.
	Save(ctx context.Context, userID string, h history.ChatHistoryMap) error
}

// Quarantine describes a corrupted store that was moved aside.
type Quarantine struct {
	Path       string
	BackupPath string // empty when the rename failed
	Reason     error
}

func (q *Quarantine) String() string {
	if q.BackupPath == "" {
		return fmt.Sprintf("chat history at %s is corrupted and could not be backed up: %v", q.Path, q.Reason)
	}
	return fmt.Sprintf("corrupted chat history at %s backed up as %s", q.Path, q.BackupPath)
}

// StorageError represents errors reading or writing the store.
type StorageError struct {
	Op   string // "read", "write", "open", "query"
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("chat store error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
