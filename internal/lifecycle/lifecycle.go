// Package lifecycle owns a user's chats for the lifetime of the process:
// which conversation is open, the archive of past ones and when each is
// written to the chat store.
//
// Every transition that replaces the open conversation archives and
// persists it first, unless it has no messages. Failures to persist never
// undo a transition; they come back as a *Notice.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/comigor/dudil-go/internal/chatstore"
	"github.com/comigor/dudil-go/internal/export"
	"github.com/comigor/dudil-go/internal/history"
	"github.com/comigor/dudil-go/internal/logger"
	"github.com/comigor/dudil-go/internal/preferences"
	"github.com/comigor/dudil-go/internal/session"
)

// DefaultTimeout is the idle period after which the session is reset.
const DefaultTimeout = 60 * time.Minute

// FSM states
const (
	StateNoSession     = "NoSession"
	StateActiveSession = "ActiveSession"
)

// FSM triggers
const (
	triggerStart     = "Start"
	triggerCreateNew = "CreateNew"
	triggerSwitchTo  = "SwitchTo"
	triggerDelete    = "Delete"
	triggerClearAll  = "ClearAll"
	triggerExpire    = "Expire"
)

// PreferenceStore persists per-user preferences.
type PreferenceStore interface {
	Load(userID string) (preferences.Preferences, error)
	Save(userID string, p preferences.Preferences) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides how chat ids are made. The default is
// session.SuffixedIDs.
func WithIDGenerator(g session.IDGenerator) Option {
	return func(m *Manager) { m.ids = g }
}

// WithPreferences enables preference loading and saving.
func WithPreferences(p PreferenceStore) Option {
	return func(m *Manager) { m.prefStore = p }
}

// WithTimeout sets the idle threshold used by CheckIdle. Values <= 0 mean
// DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// Manager is the session lifecycle of one user. It is not safe for
// concurrent use; each user action must complete before the next starts.
type Manager struct {
	userID    string
	store     chatstore.Store
	prefStore PreferenceStore
	ids       session.IDGenerator
	now       func() time.Time
	timeout   time.Duration

	fsm          *stateless.StateMachine
	chats        history.ChatHistoryMap
	loaded       bool // chats reflects the store; false after a failed read
	active       *session.Conversation
	prefs        preferences.Preferences
	lastActivity time.Time
	notes        notices
}

// New returns a Manager in the NoSession state. Call Start before use.
func New(userID string, store chatstore.Store, opts ...Option) *Manager {
	m := &Manager{
		userID: userID,
		store:  store,
		ids:    session.SuffixedIDs{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	m.fsm = m.newStateMachine()
	return m
}

func (m *Manager) newStateMachine() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateNoSession)

	fsm.Configure(StateNoSession).
		Permit(triggerStart, StateActiveSession).
		Ignore(triggerExpire).
		OnEntryFrom(triggerExpire, func(_ context.Context, _ ...any) error {
			m.reset()
			return nil
		})

	fsm.Configure(StateActiveSession).
		Ignore(triggerStart).
		PermitReentry(triggerCreateNew).
		PermitReentry(triggerSwitchTo).
		PermitReentry(triggerDelete).
		PermitReentry(triggerClearAll).
		Permit(triggerExpire, StateNoSession).
		OnEntryFrom(triggerStart, func(ctx context.Context, _ ...any) error {
			m.load(ctx)
			m.fresh()
			return nil
		}).
		OnEntryFrom(triggerCreateNew, func(ctx context.Context, _ ...any) error {
			m.archiveAndPersist(ctx)
			m.fresh()
			return nil
		}).
		OnEntryFrom(triggerSwitchTo, func(ctx context.Context, args ...any) error {
			chatID := args[0].(string)
			m.archiveAndPersist(ctx)
			m.active = session.Restore(chatID, m.chats[chatID], session.WithClock(m.now))
			logger.L.Debug("switched chat", "user_id", m.userID, "chat_id", chatID)
			return nil
		}).
		OnEntryFrom(triggerDelete, func(ctx context.Context, args ...any) error {
			chatID := args[0].(string)
			delete(m.chats, chatID)
			// The deleted chat must not be re-archived.
			if chatID == m.active.ChatID() {
				m.fresh()
			}
			m.save(ctx)
			return nil
		}).
		OnEntryFrom(triggerClearAll, func(ctx context.Context, _ ...any) error {
			m.chats = history.ChatHistoryMap{}
			m.loaded = true
			m.save(ctx)
			m.fresh()
			return nil
		})

	return fsm
}

// State returns StateNoSession or StateActiveSession.
func (m *Manager) State() string {
	return m.fsm.MustState().(string)
}

// Active reports whether a session has been started.
func (m *Manager) Active() bool {
	return m.State() == StateActiveSession
}

func (m *Manager) fire(ctx context.Context, trigger string, args ...any) error {
	if err := m.fsm.FireCtx(ctx, trigger, args...); err != nil {
		return fmt.Errorf("lifecycle %s: %w", trigger, err)
	}
	return m.notes.take()
}

// Start loads the user's chats and preferences and opens an empty
// conversation. A corrupt history file is quarantined and reported as an
// info Notice; a read failure leaves an empty in-memory history and is
// reported as a warning. After a read failure the store is read again
// before every save and nothing is written until that succeeds, so stored
// chats are never overwritten by the partial in-memory history. Start on a
// started Manager does nothing.
func (m *Manager) Start(ctx context.Context) error {
	return m.fire(ctx, triggerStart)
}

// CreateNew archives the open conversation, if it has messages, and opens
// an empty one.
func (m *Manager) CreateNew(ctx context.Context) error {
	if !m.Active() {
		return ErrNoSession
	}
	return m.fire(ctx, triggerCreateNew)
}

// SwitchTo archives the open conversation and reopens chatID. An unknown
// chatID returns ErrChatNotFound and changes nothing.
func (m *Manager) SwitchTo(ctx context.Context, chatID string) error {
	if !m.Active() {
		return ErrNoSession
	}
	if _, ok := m.chats[chatID]; !ok {
		return fmt.Errorf("switch to %q: %w", chatID, ErrChatNotFound)
	}
	return m.fire(ctx, triggerSwitchTo, chatID)
}

// Delete removes chatID from the history and persists it. Deleting the open
// chat opens an empty one without archiving the deleted one.
func (m *Manager) Delete(ctx context.Context, chatID string) error {
	if !m.Active() {
		return ErrNoSession
	}
	if _, ok := m.chats[chatID]; !ok {
		return fmt.Errorf("delete %q: %w", chatID, ErrChatNotFound)
	}
	return m.fire(ctx, triggerDelete, chatID)
}

// ClearAll deletes every archived chat and opens an empty conversation. The
// open conversation is discarded without archiving.
func (m *Manager) ClearAll(ctx context.Context) error {
	if !m.Active() {
		return ErrNoSession
	}
	return m.fire(ctx, triggerClearAll)
}

// Persist archives the open conversation, if it has messages, and saves the
// history. Call it after every completed turn.
func (m *Manager) Persist(ctx context.Context) error {
	if !m.Active() {
		return ErrNoSession
	}
	m.archiveAndPersist(ctx)
	return m.notes.take()
}

// TimeoutCheck resets the session when now-lastActivity exceeds threshold
// (<= 0 means DefaultTimeout): everything but the user id is dropped and
// Start runs again. A zero lastActivity never expires. It reports whether
// the reset happened.
//
// Messages not yet persisted are dropped by the reset. Callers must Persist
// before checking, never the other way around.
func (m *Manager) TimeoutCheck(ctx context.Context, lastActivity, now time.Time, threshold time.Duration) (bool, error) {
	if threshold <= 0 {
		threshold = DefaultTimeout
	}
	if lastActivity.IsZero() || now.Sub(lastActivity) <= threshold {
		return false, nil
	}
	logger.L.Info("session idle, resetting", "user_id", m.userID, "idle", now.Sub(lastActivity).String())
	if err := m.fire(ctx, triggerExpire); err != nil {
		return true, err
	}
	err := m.Start(ctx)
	m.lastActivity = now
	return true, err
}

// Touch records user activity at now.
func (m *Manager) Touch(now time.Time) { m.lastActivity = now }

// LastActivity returns the time passed to the last Touch.
func (m *Manager) LastActivity() time.Time { return m.lastActivity }

// CheckIdle runs TimeoutCheck against the last recorded activity and the
// configured timeout.
func (m *Manager) CheckIdle(ctx context.Context, now time.Time) (bool, error) {
	return m.TimeoutCheck(ctx, m.lastActivity, now, m.timeout)
}

// UserID returns the durable user id.
func (m *Manager) UserID() string { return m.userID }

// Conversation returns the open conversation, or nil before Start. Callers
// append to it and then call Persist.
func (m *Manager) Conversation() *session.Conversation { return m.active }

// History returns a copy of the archived chats.
func (m *Manager) History() history.ChatHistoryMap {
	return m.chats.Clone()
}

// Preferences returns a copy of the user's preferences.
func (m *Manager) Preferences() preferences.Preferences {
	return m.prefs.Clone()
}

// SetPreferences replaces the user's preferences and saves them. A failed
// save keeps the new values in memory and returns a warning Notice.
func (m *Manager) SetPreferences(p preferences.Preferences) error {
	m.setPreferences(p)
	return m.notes.take()
}

func (m *Manager) setPreferences(p preferences.Preferences) {
	m.prefs = p.Clone()
	if m.prefStore == nil {
		return
	}
	if err := m.prefStore.Save(m.userID, m.prefs); err != nil {
		logger.L.Warn("could not save preferences", "user_id", m.userID, "error", err)
		m.notes.add(LevelWarning, "preferences were not saved", err)
	}
}

// Export snapshots the user's data. The open conversation is included only
// once it has been persisted.
func (m *Manager) Export(now time.Time) export.UserData {
	current := ""
	if m.active != nil {
		current = m.active.ChatID()
	}
	return export.UserData{
		UserID:      m.userID,
		ExportDate:  history.At(now),
		ChatHistory: m.chats.Clone(),
		Preferences: m.prefs.Clone(),
		Sessions:    export.Sessions{Total: len(m.chats), Current: current},
	}
}

// WriteExport writes Export(now) to w in the given format (json, yaml or md).
func (m *Manager) WriteExport(w io.Writer, format string) error {
	e, err := export.NewExporter(format)
	if err != nil {
		return err
	}
	return e.Export(m.Export(m.now()), w)
}

// Import replaces the archived chats and the preferences with those in data,
// skipping absent sections, and saves both. The open conversation is kept
// and archived into the imported history if it has messages.
func (m *Manager) Import(ctx context.Context, data export.UserData) error {
	if !m.Active() {
		return ErrNoSession
	}
	if data.ChatHistory != nil {
		m.chats = data.ChatHistory.Clone()
		m.loaded = true
		m.archive()
		if m.save(ctx) {
			m.active.MarkSaved(m.now())
		}
	}
	if data.Preferences != nil {
		m.setPreferences(data.Preferences)
	}
	logger.L.Info("imported user data", "user_id", m.userID, "chats", len(m.chats))
	return m.notes.take()
}

func (m *Manager) load(ctx context.Context) {
	chats, q, err := m.store.Load(ctx, m.userID)
	switch {
	case err != nil:
		logger.L.Warn("could not load chat history", "user_id", m.userID, "error", err)
		m.notes.add(LevelWarning, "chat history could not be loaded, continuing without it", err)
		chats = history.ChatHistoryMap{}
		m.loaded = false
	case q != nil:
		logger.L.Warn("chat history quarantined", "path", q.Path, "backup", q.BackupPath, "reason", q.Reason)
		m.notes.add(LevelInfo, q.String(), nil)
	}
	if chats == nil {
		chats = history.ChatHistoryMap{}
	}
	if err == nil {
		m.loaded = true
	}
	m.chats = chats

	m.prefs = preferences.Defaults()
	if m.prefStore != nil {
		p, err := m.prefStore.Load(m.userID)
		if err != nil {
			logger.L.Warn("could not load preferences", "user_id", m.userID, "error", err)
			m.notes.add(LevelWarning, "preferences could not be loaded, using defaults", err)
		}
		m.prefs = p
	}
	logger.L.Info("session started", "user_id", m.userID, "chats", len(m.chats))
}

func (m *Manager) fresh() {
	m.active = session.New(m.ids.NewChatID(m.now()), session.WithClock(m.now))
}

// reset drops everything but the user id.
func (m *Manager) reset() {
	m.chats = nil
	m.loaded = false
	m.active = nil
	m.prefs = nil
	m.lastActivity = time.Time{}
}

// archive copies the open conversation into the history if it has
// messages, reporting whether it did.
func (m *Manager) archive() bool {
	if m.active == nil || m.active.Len() == 0 {
		return false
	}
	m.chats[m.active.ChatID()] = m.active.Record(m.now())
	return true
}

func (m *Manager) archiveAndPersist(ctx context.Context) {
	if m.archive() && m.save(ctx) {
		m.active.MarkSaved(m.now())
	}
}

func (m *Manager) save(ctx context.Context) bool {
	if !m.loaded && !m.reload(ctx) {
		return false
	}
	if err := m.store.Save(ctx, m.userID, m.chats); err != nil {
		logger.L.Warn("could not save chat history", "user_id", m.userID, "error", err)
		m.notes.add(LevelWarning, "chat history was not saved", err)
		return false
	}
	return true
}

// reload reads the store again after a failed Start load and merges what it
// holds under the in-memory chats. It reports whether saving is safe.
func (m *Manager) reload(ctx context.Context) bool {
	stored, q, err := m.store.Load(ctx, m.userID)
	if err != nil {
		logger.L.Warn("chat history still unreadable, not saving", "user_id", m.userID, "error", err)
		m.notes.add(LevelWarning, "chat history was not saved because the stored history could not be read", err)
		return false
	}
	if q != nil {
		logger.L.Warn("chat history quarantined", "path", q.Path, "backup", q.BackupPath, "reason", q.Reason)
		m.notes.add(LevelInfo, q.String(), nil)
	}
	for id, rec := range stored {
		if _, ok := m.chats[id]; !ok {
			m.chats[id] = rec
		}
	}
	m.loaded = true
	logger.L.Info("chat history recovered", "user_id", m.userID, "chats", len(m.chats))
	return true
}
