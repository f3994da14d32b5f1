package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comigor/dudil-go/internal/history"
	"github.com/comigor/dudil-go/internal/preferences"
)

func sampleData() UserData {
	at := func(min int) history.Timestamp {
		return history.At(time.Date(2024, 3, 1, 9, min, 0, 0, time.UTC))
	}
	return UserData{
		UserID:     "user_0123456789abcdef",
		ExportDate: at(30),
		ChatHistory: history.ChatHistoryMap{
			"chat_20240301_090000_aaaaaaaa": {
				Title:     "I feel anxious",
				Timestamp: at(1),
				Messages: []history.Message{
					{Role: history.RoleUser, Content: "I feel anxious", Timestamp: at(0),
						EmotionAnalysis: &history.EmotionAnalysis{Emotion: "fear", Confidence: 0.8, Intensity: 2, ModelIdentifier: "m"}},
					{Role: history.RoleAssistant, Content: "I hear that you're **anxious**...", Timestamp: at(1)},
				},
			},
			"chat_20240301_091000_bbbbbbbb": {
				Title:     "Ça va <bien> ?",
				Timestamp: at(11),
				Messages:  []history.Message{{Role: history.RoleUser, Content: "Ça va <bien> ?", Timestamp: at(10)}},
			},
		},
		Preferences: preferences.Preferences{"theme": "light", "notifications": false},
		Sessions:    Sessions{Total: 2, Current: "chat_20240301_091000_bbbbbbbb"},
	}
}

func TestNewExporter(t *testing.T) {
	for format, ext := range map[string]string{"": "json", "json": "json", "YAML": "yaml", "yml": "yaml", "markdown": "md"} {
		e, err := NewExporter(format)
		require.NoError(t, err, format)
		require.Equal(t, ext, e.Extension())
		require.NotEmpty(t, e.ContentType())
	}
	_, err := NewExporter("csv")
	require.ErrorContains(t, err, "unsupported format")
}

func TestJSONAndYAMLRoundTrip(t *testing.T) {
	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			e, err := NewExporter(format)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, e.Export(sampleData(), &buf))
			require.Contains(t, buf.String(), "Ça va <bien> ?", "text is written literally")

			got, err := Read(&buf, format)
			require.NoError(t, err)
			require.Equal(t, sampleData().ChatHistory, got.ChatHistory)
			require.Equal(t, sampleData().Sessions, got.Sessions)
			require.Equal(t, "light", got.Preferences["theme"])
			require.Equal(t, false, got.Preferences["notifications"])
			require.True(t, got.ExportDate.Equal(sampleData().ExportDate.Time))
		})
	}
}

func TestJSONShape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONExporter{}).Export(sampleData(), &buf))
	for _, key := range []string{`"user_id"`, `"export_date"`, `"chat_history"`, `"preferences"`, `"sessions"`, `"total": 2`} {
		require.Contains(t, buf.String(), key)
	}
}

func TestReadMissingSectionsStayNil(t *testing.T) {
	got, err := Read(strings.NewReader(`{"user_id": "user_x"}`), "json")
	require.NoError(t, err)
	require.Nil(t, got.ChatHistory)
	require.Nil(t, got.Preferences)

	_, err = Read(strings.NewReader(`{not json`), "json")
	require.Error(t, err)
	_, err = Read(strings.NewReader(``), "toml")
	require.Error(t, err)
}

func TestMarkdownTranscript(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&MarkdownExporter{}).Export(sampleData(), &buf))
	out := buf.String()

	require.Contains(t, out, "# Chats of user_0123456789abcdef")
	require.Contains(t, out, "😨 fear 80%")
	require.Contains(t, out, `\*\*anxious\*\*`)
	require.Less(t, strings.Index(out, "## Ça va"), strings.Index(out, "## I feel anxious"), "newest chat first")
}
