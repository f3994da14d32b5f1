package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/dudil-go/internal/history"
	"github.com/comigor/dudil-go/internal/logger"
)

// DefaultSQLiteFile is the database name inside the data dir.
const DefaultSQLiteFile = "history.db"

// QuarantineTable receives rows that no longer decode.
const QuarantineTable = "chats_quarantine"

// SQLiteStore keeps one row per archived chat. Save replaces a user's rows
// in a single transaction, so unlike the JSON stores it is safe for
// concurrent writers.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (and creates if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &StorageError{Op: "open", Path: path, Err: err}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, &StorageError{Op: "open", Path: path, Err: err}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS chats (
		user_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		title TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		PRIMARY KEY (user_id, chat_id)
	);
	CREATE TABLE IF NOT EXISTS chats_quarantine (
		user_id TEXT NOT NULL,
		chat_id TEXT NOT NULL,
		title TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		reason TEXT NOT NULL,
		quarantined_at TEXT NOT NULL,
		PRIMARY KEY (user_id, chat_id)
	);`); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Path: path, Err: fmt.Errorf("create schema: %w", err)}
	}
	logger.L.Info("sqlite chat store initialized", "path", path)
	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns the user's chats. Rows that no longer decode are moved to
// QuarantineTable and reported through the *Quarantine, so a later Save
// cannot destroy them. If the move fails Load returns a *StorageError.
func (s *SQLiteStore) Load(ctx context.Context, userID string) (history.ChatHistoryMap, *Quarantine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, title, timestamp, messages_json FROM chats WHERE user_id = ?;`, userID)
	if err != nil {
		return history.ChatHistoryMap{}, nil, &StorageError{Op: "query", Path: s.path, Err: err}
	}
	defer rows.Close()

	out := history.ChatHistoryMap{}
	var bad []badRow
	for rows.Next() {
		var row badRow
		if err := rows.Scan(&row.chatID, &row.title, &row.ts, &row.raw); err != nil {
			return history.ChatHistoryMap{}, nil, &StorageError{Op: "query", Path: s.path, Err: err}
		}
		rec := history.ChatRecord{Title: row.title}
		if rec.Timestamp, err = history.ParseTimestamp(row.ts); err != nil {
			row.reason = fmt.Errorf("chat %s: timestamp: %w", row.chatID, err)
			bad = append(bad, row)
			continue
		}
		if err := json.Unmarshal([]byte(row.raw), &rec.Messages); err != nil {
			row.reason = fmt.Errorf("chat %s: messages: %w", row.chatID, err)
			bad = append(bad, row)
			continue
		}
		out[row.chatID] = rec
	}
	if err := rows.Err(); err != nil {
		return history.ChatHistoryMap{}, nil, &StorageError{Op: "query", Path: s.path, Err: err}
	}
	rows.Close()

	if len(bad) == 0 {
		return out, nil, nil
	}
	q, err := s.quarantine(ctx, userID, bad)
	if err != nil {
		return history.ChatHistoryMap{}, nil, err
	}
	return out, q, nil
}

type badRow struct {
	chatID, title, ts, raw string
	reason                 error
}

// quarantine moves rows out of chats in one transaction.
func (s *SQLiteStore) quarantine(ctx context.Context, userID string, bad []badRow) (*Quarantine, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &StorageError{Op: "quarantine", Path: s.path, Err: err}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	now := history.At(time.Now()).String()
	ids := make([]string, 0, len(bad))
	reasons := make([]error, 0, len(bad))
	for _, row := range bad {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO chats_quarantine (user_id, chat_id, title, timestamp, messages_json, reason, quarantined_at) VALUES (?,?,?,?,?,?,?);`,
			userID, row.chatID, row.title, row.ts, row.raw, row.reason.Error(), now); err != nil {
			return nil, &StorageError{Op: "quarantine", Path: s.path, Err: err}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE user_id = ? AND chat_id = ?;`, userID, row.chatID); err != nil {
			return nil, &StorageError{Op: "quarantine", Path: s.path, Err: err}
		}
		ids = append(ids, row.chatID)
		reasons = append(reasons, row.reason)
	}
	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "quarantine", Path: s.path, Err: err}
	}

	logger.L.Warn("quarantined unreadable chats", "user_id", userID, "chats", ids)
	return &Quarantine{
		Path:       fmt.Sprintf("%s (chats %s)", s.path, strings.Join(ids, ", ")),
		BackupPath: s.path + " table " + QuarantineTable,
		Reason:     errors.Join(reasons...),
	}, nil
}

// Save replaces every row of userID with h.
func (s *SQLiteStore) Save(ctx context.Context, userID string, h history.ChatHistoryMap) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE user_id = ?;`, userID); err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	for chatID, rec := range h {
		msgs := rec.Messages
		if msgs == nil {
			msgs = []history.Message{}
		}
		raw, err := json.Marshal(msgs)
		if err != nil {
			return &StorageError{Op: "encode", Path: s.path, Err: err}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chats (user_id, chat_id, title, timestamp, messages_json) VALUES (?,?,?,?,?);`,
			userID, chatID, rec.Title, rec.Timestamp.String(), string(raw)); err != nil {
			return &StorageError{Op: "write", Path: s.path, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}
