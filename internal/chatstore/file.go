package chatstore

import (
	"context"
	"time"

	"github.com/comigor/dudil-go/internal/history"
)

// DefaultSingleUserPath is the single-user history file, relative to the
// working directory.
const DefaultSingleUserPath = "chat_history.json"

// FileStore keeps one history map in a JSON file shared by every user id.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore returns a single-user store backed by path.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultSingleUserPath
	}
	return &FileStore{path: path, now: time.Now}
}

func (s *FileStore) Path() string { return s.path }

// Load ignores userID: the file holds a single history.
func (s *FileStore) Load(_ context.Context, _ string) (history.ChatHistoryMap, *Quarantine, error) {
	var h history.ChatHistoryMap
	q, err := readJSON(s.path, &h, s.now())
	if err != nil {
		return history.ChatHistoryMap{}, nil, err
	}
	if q != nil || h == nil {
		return history.ChatHistoryMap{}, q, nil
	}
	return h, nil, nil
}

// Save overwrites the file with h.
func (s *FileStore) Save(_ context.Context, _ string, h history.ChatHistoryMap) error {
	if h == nil {
		h = history.ChatHistoryMap{}
	}
	return writeJSON(s.path, h)
}
