// Package export writes and reads a user's data backup: archived chats,
// preferences and a summary of their sessions.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/comigor/dudil-go/internal/history"
	"github.com/comigor/dudil-go/internal/preferences"
)

// Sessions summarizes the user's chats at export time.
type Sessions struct {
	Total   int    `json:"total" yaml:"total"`
	Current string `json:"current" yaml:"current"`
}

// UserData is the backup document. On import a nil ChatHistory or nil
// Preferences means the section was absent and is left alone.
type UserData struct {
	UserID      string                  `json:"user_id" yaml:"user_id"`
	ExportDate  history.Timestamp       `json:"export_date" yaml:"export_date"`
	ChatHistory history.ChatHistoryMap  `json:"chat_history" yaml:"chat_history"`
	Preferences preferences.Preferences `json:"preferences" yaml:"preferences"`
	Sessions    Sessions                `json:"sessions" yaml:"sessions"`
}

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(data UserData, w io.Writer) error
	Extension() string
	ContentType() string
}

// NewExporter creates a new exporter based on format. An empty format
// selects json.
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml, md)", format)
	}
}

// JSONExporter writes indented JSON with non-ASCII text kept literal.
type JSONExporter struct{}

func (e *JSONExporter) Export(data UserData, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(data)
}

func (e *JSONExporter) Extension() string   { return "json" }
func (e *JSONExporter) ContentType() string { return "application/json" }

// YAMLExporter exports user data in YAML format
type YAMLExporter struct{}

func (e *YAMLExporter) Export(data UserData, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()

	return enc.Encode(data)
}

func (e *YAMLExporter) Extension() string   { return "yaml" }
func (e *YAMLExporter) ContentType() string { return "application/yaml" }

// Read decodes a backup in json or yaml. An empty format selects json.
func Read(r io.Reader, format string) (UserData, error) {
	var data UserData
	switch strings.ToLower(format) {
	case "", "json":
		if err := json.NewDecoder(r).Decode(&data); err != nil {
			return UserData{}, fmt.Errorf("decode json backup: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&data); err != nil {
			return UserData{}, fmt.Errorf("decode yaml backup: %w", err)
		}
	default:
		return UserData{}, fmt.Errorf("unsupported format: %s (supported: json, yaml)", format)
	}
	return data, nil
}
