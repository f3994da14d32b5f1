package chatstore

import (
	"context"
	"path/filepath"
	"time"

	"github.com/comigor/dudil-go/internal/history"
	"github.com/comigor/dudil-go/internal/logger"
)

// DefaultMultiUserFile is the multi-user document name inside the data dir.
const DefaultMultiUserFile = "chat_history.json"

// MultiUserFileStore keeps every user's history in one JSON document keyed
// by user id.
//
// Save is read-merge-write: it reloads the document, replaces only the
// caller's entry and writes the whole document back. This is not
// transactional. Two processes saving for different users at the same time
// race, and the later writer's view of the file wins for everyone. The file
// is only safe with a single writer at a time.
type MultiUserFileStore struct {
	path string
	now  func() time.Time
}

// NewMultiUserFileStore returns a store for <dataDir>/chat_history.json.
func NewMultiUserFileStore(dataDir string) *MultiUserFileStore {
	return &MultiUserFileStore{
		path: filepath.Join(dataDir, DefaultMultiUserFile),
		now:  time.Now,
	}
}

func (s *MultiUserFileStore) Path() string { return s.path }

func (s *MultiUserFileStore) Load(_ context.Context, userID string) (history.ChatHistoryMap, *Quarantine, error) {
	doc, q, err := s.readAll()
	if err != nil {
		return history.ChatHistoryMap{}, nil, err
	}
	h := doc[userID]
	if h == nil {
		h = history.ChatHistoryMap{}
	}
	return h, q, nil
}

// Save merges h into the document under userID. A corrupted document is
// quarantined first, so the rewrite starts from this user only.
func (s *MultiUserFileStore) Save(_ context.Context, userID string, h history.ChatHistoryMap) error {
	doc, q, err := s.readAll()
	if err != nil {
		return err
	}
	if q != nil {
		logger.L.Warn("rewriting multi-user chat history after quarantine", "user_id", userID, "backup", q.BackupPath)
	}
	if h == nil {
		h = history.ChatHistoryMap{}
	}
	doc[userID] = h
	return writeJSON(s.path, doc)
}

func (s *MultiUserFileStore) readAll() (history.UserHistories, *Quarantine, error) {
	var doc history.UserHistories
	q, err := readJSON(s.path, &doc, s.now())
	if err != nil {
		return nil, nil, err
	}
	if q != nil || doc == nil {
		return history.UserHistories{}, q, nil
	}
	return doc, nil, nil
}
