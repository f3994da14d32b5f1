// Package history defines the persisted conversation model: messages with
// their emotion annotations, archived chat records and the per-user map of
// records keyed by chat id.
package history

import (
	"maps"
	"slices"
	"strings"
)

// DefaultTitle is shown for a chat that has no messages yet.
const DefaultTitle = "New Chat"

const titleLimit = 30

// ChatRecord is an archived chat session.
type ChatRecord struct {
	Messages  []Message `json:"messages" yaml:"messages"`
	Title     string    `json:"title" yaml:"title"`
	Timestamp Timestamp `json:"timestamp" yaml:"timestamp"`
}

// ChatHistoryMap holds one user's archived chats keyed by chat id.
type ChatHistoryMap map[string]ChatRecord

// UserHistories is the multi-user document: user id to that user's chats.
type UserHistories map[string]ChatHistoryMap

// Title derives a chat title from its first message, truncated to 30
// characters with a trailing "..." when longer.
func Title(messages []Message) string {
	if len(messages) == 0 {
		return DefaultTitle
	}
	runes := []rune(messages[0].Content)
	if len(runes) > titleLimit {
		return string(runes[:titleLimit]) + "..."
	}
	return messages[0].Content
}

// Clone returns a copy whose records and message slices are independent of m.
func (m ChatHistoryMap) Clone() ChatHistoryMap {
	out := make(ChatHistoryMap, len(m))
	for id, rec := range m {
		rec.Messages = CloneMessages(rec.Messages)
		out[id] = rec
	}
	return out
}

// CloneMessages copies msgs, including the emotion annotations.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, msg := range msgs {
		if msg.EmotionAnalysis != nil {
			ea := *msg.EmotionAnalysis
			ea.RawResults = append([]LabelScore(nil), ea.RawResults...)
			msg.EmotionAnalysis = &ea
		}
		out[i] = msg
	}
	return out
}

// IDs returns the chat ids of m, newest record first.
func (m ChatHistoryMap) IDs() []string {
	ids := slices.Collect(maps.Keys(m))
	slices.SortFunc(ids, func(a, b string) int {
		if c := m[b].Timestamp.Compare(m[a].Timestamp.Time); c != 0 {
			return c
		}
		return strings.Compare(b, a)
	})
	return ids
}
