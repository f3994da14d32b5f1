// Package session holds the working copy of the chat that is currently open.
package session

import (
	"time"

	"github.com/comigor/dudil-go/internal/history"
)

// Conversation is the active chat: an append-only list of messages under a
// chat id. It is not safe for concurrent use; callers serialize user actions.
type Conversation struct {
	chatID    string
	messages  []history.Message
	lastSaved history.Timestamp
	now       func() time.Time
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) { c.now = now }
}

// New returns an empty conversation.
func New(chatID string, opts ...Option) *Conversation {
	c := &Conversation{chatID: chatID, messages: make([]history.Message, 0, 8), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Restore reopens an archived chat, keeping its id and message order.
func Restore(chatID string, rec history.ChatRecord, opts ...Option) *Conversation {
	c := New(chatID, opts...)
	c.messages = append(c.messages, history.CloneMessages(rec.Messages)...)
	c.lastSaved = rec.Timestamp
	return c
}

func (c *Conversation) ChatID() string { return c.chatID }

func (c *Conversation) Len() int { return len(c.messages) }

// Messages returns a copy of the history in append order.
func (c *Conversation) Messages() []history.Message {
	return history.CloneMessages(c.messages)
}

// Title is derived from the first message; see history.Title.
func (c *Conversation) Title() string {
	return history.Title(c.messages)
}

// LastSaved reports when the conversation was last persisted.
func (c *Conversation) LastSaved() history.Timestamp { return c.lastSaved }

// MarkSaved records a successful persist.
func (c *Conversation) MarkSaved(at time.Time) {
	c.lastSaved = history.At(at)
}

// Record snapshots the conversation for archiving.
func (c *Conversation) Record(at time.Time) history.ChatRecord {
	return history.ChatRecord{
		Messages:  c.Messages(),
		Title:     c.Title(),
		Timestamp: history.At(at),
	}
}

// AppendUserMessage appends a user turn with its emotion annotation. Blank
// content is accepted here; rejecting it is the caller's concern.
func (c *Conversation) AppendUserMessage(content string, analysis *history.EmotionAnalysis) history.Message {
	if analysis != nil {
		cp := *analysis
		analysis = &cp
	}
	return c.append(history.Message{
		Role:            history.RoleUser,
		Content:         content,
		EmotionAnalysis: analysis,
	})
}

// AppendAssistantMessage appends an assistant turn.
func (c *Conversation) AppendAssistantMessage(content string) history.Message {
	return c.append(history.Message{Role: history.RoleAssistant, Content: content})
}

func (c *Conversation) append(msg history.Message) history.Message {
	ts := history.At(c.now())
	// Wall clocks can step backwards; keep timestamps non-decreasing.
	if n := len(c.messages); n > 0 && ts.Before(c.messages[n-1].Timestamp.Time) {
		ts = c.messages[n-1].Timestamp
	}
	msg.Timestamp = ts
	c.messages = append(c.messages, msg)
	return msg
}
