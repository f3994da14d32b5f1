// Package chat runs one conversational turn: annotate the user's message,
// generate a reply and persist both.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/comigor/dudil-go/internal/history"
	"github.com/comigor/dudil-go/internal/lifecycle"
	"github.com/comigor/dudil-go/internal/logger"
)

var (
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrCollaboratorUnavailable is returned when the annotator or the
	// responder is not configured. Nothing is appended.
	ErrCollaboratorUnavailable = errors.New("emotion analysis or response generation is unavailable")
)

// Annotator classifies the emotion of a message.
type Annotator interface {
	Annotate(ctx context.Context, text string) history.EmotionAnalysis
}

// Responder produces the assistant reply. messages ends with the user
// message being answered.
type Responder interface {
	Generate(ctx context.Context, text string, analysis history.EmotionAnalysis, messages []history.Message) string
}

// Turn is a completed exchange.
type Turn struct {
	ChatID    string
	User      history.Message
	Assistant history.Message
}

// Service sends messages on behalf of one user.
type Service struct {
	lc        *lifecycle.Manager
	annotator Annotator
	responder Responder
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used to record activity.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a Service. A nil annotator or responder makes Send
// refuse every message with ErrCollaboratorUnavailable.
func NewService(lc *lifecycle.Manager, a Annotator, r Responder, opts ...Option) *Service {
	s := &Service{lc: lc, annotator: a, responder: r, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lifecycle returns the session lifecycle the service appends to.
func (s *Service) Lifecycle() *lifecycle.Manager { return s.lc }

// Send appends text and the generated reply to the open conversation and
// persists them. A persistence failure is returned as a lifecycle Notice
// alongside the completed Turn; the turn stays in the conversation.
func (s *Service) Send(ctx context.Context, text string) (Turn, error) {
	if strings.TrimSpace(text) == "" {
		return Turn{}, ErrEmptyMessage
	}
	if s.annotator == nil || s.responder == nil {
		return Turn{}, ErrCollaboratorUnavailable
	}
	conv := s.lc.Conversation()
	if conv == nil {
		return Turn{}, lifecycle.ErrNoSession
	}

	// Nothing is saved while the collaborators run.
	analysis := s.annotator.Annotate(ctx, text)
	user := conv.AppendUserMessage(text, &analysis)
	reply := s.responder.Generate(ctx, text, analysis, conv.Messages())
	assistant := conv.AppendAssistantMessage(reply)

	turn := Turn{ChatID: conv.ChatID(), User: user, Assistant: assistant}
	logger.L.Debug("turn completed", "chat_id", turn.ChatID, "emotion", analysis.Emotion, "confidence", analysis.Confidence)

	err := s.lc.Persist(ctx)
	s.lc.Touch(s.now())
	return turn, err
}

// Resume runs the idle check for a new user action. Send persists before
// returning, so nothing unsaved is dropped by a reset here.
func (s *Service) Resume(ctx context.Context, now time.Time) (bool, error) {
	expired, err := s.lc.CheckIdle(ctx, now)
	if !expired {
		s.lc.Touch(now)
	}
	return expired, err
}
