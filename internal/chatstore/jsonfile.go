package chatstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/comigor/dudil-go/internal/logger"
)

const backupLayout = "20060102_150405"

var errInvalidUTF8 = errors.New("invalid UTF-8 encoding")

// readJSON decodes the file at path into v, leaving v untouched when the
// file does not exist. Content that does not decode is quarantined.
func readJSON(path string, v any, now time.Time) (*Quarantine, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}
	if !utf8.Valid(data) {
		return quarantine(path, errInvalidUTF8, now), nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return quarantine(path, err, now), nil
	}
	return nil, nil
}

// quarantine renames the corrupted file at path to
// <stem>_backup_<YYYYMMDD_HHMMSS>.json next to it.
func quarantine(path string, reason error, now time.Time) *Quarantine {
	q := &Quarantine{Path: path, Reason: reason}
	backup := backupPath(path, now)
	if err := os.Rename(path, backup); err != nil {
		logger.L.Error("could not back up corrupted chat history", "path", path, "error", err)
		return q
	}
	q.BackupPath = backup
	logger.L.Warn("corrupted chat history backed up", "path", path, "backup", backup, "reason", reason)
	return q
}

func backupPath(path string, now time.Time) string {
	dir := filepath.Dir(path)
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := fmt.Sprintf("%s_backup_%s", stem, now.Format(backupLayout))
	candidate := filepath.Join(dir, name+".json")
	for i := 1; ; i++ {
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d.json", name, i))
	}
}

// writeJSON writes v as indented JSON, keeping non-ASCII and HTML
// characters literal. The file is replaced atomically via a temp file in
// the same directory.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return &StorageError{Op: "encode", Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		cleanup()
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	return nil
}
