package chatstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/dudil-go/internal/config"
	"github.com/comigor/dudil-go/internal/history"
)

func sampleHistory() history.ChatHistoryMap {
	ts := history.At(time.Date(2024, 4, 5, 6, 7, 8, 0, time.UTC))
	return history.ChatHistoryMap{
		"chat_20240405_060708_abcdef12": {
			Title:     "Je me sens très anxieux aujour...",
			Timestamp: ts,
			Messages: []history.Message{
				{
					Role:      history.RoleUser,
					Content:   "Je me sens très anxieux aujourd'hui 😟 <b>&</b>",
					Timestamp: ts,
					EmotionAnalysis: &history.EmotionAnalysis{
						Emotion:         "fear",
						Confidence:      0.8,
						Intensity:       2,
						ModelIdentifier: "distilbert-emotion",
						RawResults:      []history.LabelScore{{Label: "fear", Score: 0.8}, {Label: "joy", Score: 0.2}},
					},
				},
				{Role: history.RoleAssistant, Content: "Je comprends. 心配しないで", Timestamp: ts},
			},
		},
		"chat_20240405_060709_00000000": {
			Title:     "New Chat",
			Timestamp: ts,
			Messages:  []history.Message{},
		},
	}
}

func fixedNow() time.Time { return time.Date(2024, 9, 10, 11, 12, 13, 0, time.UTC) }

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "chat_history.json"))
	h, q, err := s.Load(context.Background(), "ignored")
	require.NoError(t, err)
	require.Nil(t, q)
	require.Empty(t, h)
	require.NotNil(t, h)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat_history.json")
	s := NewFileStore(path)

	_, _, err := s.Load(ctx, "")
	require.NoError(t, err)

	want := sampleHistory()
	require.NoError(t, s.Save(ctx, "", want))

	got, q, err := s.Load(ctx, "")
	require.NoError(t, err)
	require.Nil(t, q)
	require.Equal(t, want, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "très anxieux aujourd'hui 😟 <b>&</b>", "non-ASCII and HTML must be written literally")
	require.Contains(t, string(raw), "\n  \"chat_", "document must be indented")
}

func TestFileStoreQuarantinesCorruptFile(t *testing.T) {
	for name, content := range map[string][]byte{
		"syntax":   []byte(`{"chat_1": {"messages": [`),
		"encoding": {'{', '"', 0xff, 0xfe, '"', ':', '1', '}'},
		"shape":    []byte(`["not", "a", "map"]`),
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "chat_history.json")
			require.NoError(t, os.WriteFile(path, content, 0o644))

			s := NewFileStore(path)
			s.now = fixedNow
			h, q, err := s.Load(context.Background(), "")
			require.NoError(t, err)
			require.Empty(t, h)
			require.NotNil(t, q)
			require.Equal(t, filepath.Join(dir, "chat_history_backup_20240910_111213.json"), q.BackupPath)
			require.NotEqual(t, path, q.BackupPath)

			backup, err := os.ReadFile(q.BackupPath)
			require.NoError(t, err)
			require.Equal(t, content, backup)

			_, err = os.Stat(path)
			require.True(t, errors.Is(err, os.ErrNotExist))
		})
	}
}

func TestBackupPathAvoidsExistingBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat_history.json")
	first := filepath.Join(dir, "chat_history_backup_20240910_111213.json")
	require.NoError(t, os.WriteFile(first, []byte("older"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	q := quarantine(path, errors.New("bad"), fixedNow())
	require.Equal(t, filepath.Join(dir, "chat_history_backup_20240910_111213_1.json"), q.BackupPath)

	older, err := os.ReadFile(first)
	require.NoError(t, err)
	require.Equal(t, "older", string(older))
}

func TestFileStoreSaveFailureIsStorageError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := NewFileStore(filepath.Join(blocker, "chat_history.json"))
	err := s.Save(context.Background(), "", sampleHistory())
	var se *StorageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "write", se.Op)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "chat_history.json"))
	require.NoError(t, s.Save(context.Background(), "", sampleHistory()))
	require.NoError(t, s.Save(context.Background(), "", history.ChatHistoryMap{}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "chat_history.json", entries[0].Name())
}

func TestMultiUserSaveMergesUsers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	alice := NewMultiUserFileStore(dir)
	bob := NewMultiUserFileStore(dir) // a second process instance

	aliceHist := sampleHistory()
	require.NoError(t, alice.Save(ctx, "user_alice", aliceHist))

	bobHist := history.ChatHistoryMap{"chat_b": {Title: "bob", Messages: []history.Message{}}}
	require.NoError(t, bob.Save(ctx, "user_bob", bobHist))

	got, q, err := alice.Load(ctx, "user_alice")
	require.NoError(t, err)
	require.Nil(t, q)
	require.Equal(t, aliceHist, got)

	got, _, err = alice.Load(ctx, "user_bob")
	require.NoError(t, err)
	require.Equal(t, bobHist, got)

	got, _, err = alice.Load(ctx, "user_nobody")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMultiUserSaveAfterCorruptionKeepsBackup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultMultiUserFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"user_a": {`), 0o644))

	s := NewMultiUserFileStore(dir)
	s.now = fixedNow
	require.NoError(t, s.Save(ctx, "user_b", sampleHistory()))

	backup, err := os.ReadFile(filepath.Join(dir, "chat_history_backup_20240910_111213.json"))
	require.NoError(t, err)
	require.Equal(t, `{"user_a": {`, string(backup))

	got, q, err := s.Load(ctx, "user_b")
	require.NoError(t, err)
	require.Nil(t, q)
	require.Equal(t, sampleHistory(), got)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", DefaultSQLiteFile))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	want := sampleHistory()
	require.NoError(t, s.Save(ctx, "user_a", want))
	require.NoError(t, s.Save(ctx, "user_b", history.ChatHistoryMap{"chat_b": {Title: "b", Messages: []history.Message{}}}))

	got, q, err := s.Load(ctx, "user_a")
	require.NoError(t, err)
	require.Nil(t, q)
	require.Equal(t, want, got)

	// replacing drops chats that are no longer present
	delete(want, "chat_20240405_060709_00000000")
	require.NoError(t, s.Save(ctx, "user_a", want))
	got, _, err = s.Load(ctx, "user_a")
	require.NoError(t, err)
	require.Len(t, got, 1)

	other, _, err := s.Load(ctx, "user_b")
	require.NoError(t, err)
	require.Len(t, other, 1)
}

func TestSQLiteStoreQuarantinesUnreadableRows(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), DefaultSQLiteFile))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Save(ctx, "user_a", sampleHistory()))
	_, err = s.db.ExecContext(ctx, `INSERT INTO chats VALUES ('user_a', 'chat_bad', 't', '', '[{oops');`)
	require.NoError(t, err)

	got, q, err := s.Load(ctx, "user_a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotContains(t, got, "chat_bad")
	require.NotNil(t, q)
	require.Contains(t, q.Path, "chat_bad")
	require.Contains(t, q.String(), QuarantineTable)
	require.Error(t, q.Reason)

	// The next save replaces user_a's chats but the bad row survives aside.
	require.NoError(t, s.Save(ctx, "user_a", got))
	var raw string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT messages_json FROM chats_quarantine WHERE user_id = 'user_a' AND chat_id = 'chat_bad';`).Scan(&raw))
	require.Equal(t, "[{oops", raw)

	got, q, err = s.Load(ctx, "user_a")
	require.NoError(t, err)
	require.Nil(t, q)
	require.Len(t, got, 2)
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	h := sampleHistory()
	require.NoError(t, s.Save(ctx, "u", h))
	h["extra"] = history.ChatRecord{}

	got, _, err := s.Load(ctx, "u")
	require.NoError(t, err)
	require.Len(t, got, 2)

	s.SaveErr = errors.New("disk full")
	err = s.Save(ctx, "u", h)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "disk full"))
}

func TestOpenSelectsStoreByMode(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(config.StorageConfig{Mode: config.StorageSingle, HistoryFile: filepath.Join(dir, "h.json")})
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, s)

	s, err = Open(config.StorageConfig{Mode: config.StorageMulti, DataDir: dir})
	require.NoError(t, err)
	require.IsType(t, &MultiUserFileStore{}, s)

	s, err = Open(config.StorageConfig{Mode: config.StorageSQLite, DataDir: dir})
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.(*SQLiteStore).Close())

	_, err = Open(config.StorageConfig{Mode: "postgres"})
	require.Error(t, err)
}

func TestOpenFallsBackToMemory(t *testing.T) {
	// A regular file where the data directory should be makes SQLite unusable.
	blocker := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s, err := Open(config.StorageConfig{Mode: config.StorageSQLite, DataDir: blocker})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)
}
