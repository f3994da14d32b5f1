package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/comigor/dudil-go/internal/emotion"
	"github.com/comigor/dudil-go/internal/history"
)

// MarkdownExporter writes a readable transcript of every chat, newest first.
// Preferences are not included.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(data UserData, w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# Chats of %s\n\n", data.UserID); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "**Exported:** %s  \n", data.ExportDate)
	_, _ = fmt.Fprintf(w, "**Chats:** %d\n\n", len(data.ChatHistory))

	for _, id := range data.ChatHistory.IDs() {
		rec := data.ChatHistory[id]
		_, _ = fmt.Fprintf(w, "---\n\n## %s\n\n`%s` (%s)\n\n", rec.Title, id, rec.Timestamp)
		for _, msg := range rec.Messages {
			_, _ = fmt.Fprintf(w, "**%s:** (%s)%s\n\n%s\n\n", speaker(msg.Role), msg.Timestamp, annotation(msg), escapeMarkdown(msg.Content))
		}
	}
	return nil
}

func (e *MarkdownExporter) Extension() string   { return "md" }
func (e *MarkdownExporter) ContentType() string { return "text/markdown; charset=utf-8" }

func speaker(r history.Role) string {
	if r == history.RoleUser {
		return "You"
	}
	return "Assistant"
}

func annotation(msg history.Message) string {
	ea := msg.EmotionAnalysis
	if ea == nil {
		return ""
	}
	return fmt.Sprintf(" %s %s %.0f%%", emotion.Emoji(ea.Emotion), ea.Emotion, ea.Confidence*100)
}

// escapeMarkdown escapes emphasis markers outside code blocks.
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	inCodeBlock := false
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			continue
		}
		if inCodeBlock {
			continue
		}
		line = strings.ReplaceAll(line, "**", "\\*\\*")
		lines[i] = strings.ReplaceAll(line, "__", "\\_\\_")
	}
	return strings.Join(lines, "\n")
}
