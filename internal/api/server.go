// Package api exposes the chat over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/comigor/dudil-go/internal/chat"
	"github.com/comigor/dudil-go/internal/emotion"
	"github.com/comigor/dudil-go/internal/export"
	"github.com/comigor/dudil-go/internal/history"
	"github.com/comigor/dudil-go/internal/lifecycle"
	"github.com/comigor/dudil-go/internal/logger"
	"github.com/comigor/dudil-go/internal/preferences"
)

const maxBodyBytes = 10 << 20

// Server serves one user's chats. Requests are handled one at a time.
type Server struct {
	mu  sync.Mutex
	svc *chat.Service
	now func() time.Time
}

func New(svc *chat.Service) *Server {
	return &Server{svc: svc, now: time.Now}
}

// Routes returns the HTTP handler with all endpoints mounted.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the chat endpoints on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/chat", s.action(s.handleCurrent))
	r.Post("/chat/messages", s.action(s.handleSend))
	r.Post("/chat/new", s.action(s.handleNew))
	r.Post("/chat/switch/{chatID}", s.action(s.handleSwitch))
	r.Get("/chats", s.action(s.handleList))
	r.Delete("/chats/{chatID}", s.action(s.handleDelete))
	r.Delete("/chats", s.action(s.handleClear))
	r.Get("/export", s.action(s.handleExport))
	r.Post("/import", s.action(s.handleImport))
	r.Get("/preferences", s.action(s.handleGetPreferences))
	r.Put("/preferences", s.action(s.handlePutPreferences))
}

// actionFunc handles one user action. Notices gathered so far are passed in
// and should be included in the response.
type actionFunc func(w http.ResponseWriter, r *http.Request, notes *noticeList)

// action serializes user actions and runs the idle check before each one.
func (s *Server) action(fn actionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		var notes noticeList
		expired, err := s.svc.Resume(r.Context(), s.now())
		if err = notes.collect(err); err != nil {
			logger.L.Error("idle check failed", "error", err)
			respondError(w, statusFor(err), err.Error())
			return
		}
		if expired {
			notes = append(notes, noticeView{Level: lifecycle.LevelInfo, Message: "your session expired after inactivity and was reset"})
		}
		fn(w, r, &notes)
	}
}

type messageView struct {
	history.Message
	Emoji string `json:"emoji,omitempty"`
}

type chatView struct {
	ChatID   string        `json:"chat_id"`
	Title    string        `json:"title"`
	Messages []messageView `json:"messages"`
	Notices  noticeList    `json:"notices,omitempty"`
}

func viewMessage(m history.Message) messageView {
	v := messageView{Message: m}
	if m.EmotionAnalysis != nil {
		v.Emoji = emotion.Emoji(m.EmotionAnalysis.Emotion)
	}
	return v
}

func (s *Server) current(notes noticeList) chatView {
	conv := s.svc.Lifecycle().Conversation()
	view := chatView{Title: history.DefaultTitle, Messages: []messageView{}, Notices: notes}
	if conv == nil {
		return view
	}
	view.ChatID = conv.ChatID()
	view.Title = conv.Title()
	for _, m := range conv.Messages() {
		view.Messages = append(view.Messages, viewMessage(m))
	}
	return view
}

// finish writes the current chat, or the error when err is not a Notice.
func (s *Server) finish(w http.ResponseWriter, notes *noticeList, err error) {
	if err = notes.collect(err); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.current(*notes))
}

func (s *Server) handleCurrent(w http.ResponseWriter, _ *http.Request, notes *noticeList) {
	respondJSON(w, http.StatusOK, s.current(*notes))
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, notes *noticeList) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	turn, err := s.svc.Send(r.Context(), payload.Text)
	if err = notes.collect(err); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, struct {
		ChatID    string      `json:"chat_id"`
		User      messageView `json:"user"`
		Assistant messageView `json:"assistant"`
		Notices   noticeList  `json:"notices,omitempty"`
	}{turn.ChatID, viewMessage(turn.User), viewMessage(turn.Assistant), *notes})
}

func (s *Server) handleNew(w http.ResponseWriter, r *http.Request, notes *noticeList) {
	s.finish(w, notes, s.svc.Lifecycle().CreateNew(r.Context()))
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request, notes *noticeList) {
	s.finish(w, notes, s.svc.Lifecycle().SwitchTo(r.Context(), chi.URLParam(r, "chatID")))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, notes *noticeList) {
	s.finish(w, notes, s.svc.Lifecycle().Delete(r.Context(), chi.URLParam(r, "chatID")))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request, notes *noticeList) {
	s.finish(w, notes, s.svc.Lifecycle().ClearAll(r.Context()))
}

type chatSummary struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Timestamp history.Timestamp `json:"timestamp"`
	Messages  int               `json:"messages"`
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request, notes *noticeList) {
	lc := s.svc.Lifecycle()
	h := lc.History()
	chats := make([]chatSummary, 0, len(h))
	for _, id := range h.IDs() {
		rec := h[id]
		chats = append(chats, chatSummary{ID: id, Title: rec.Title, Timestamp: rec.Timestamp, Messages: len(rec.Messages)})
	}
	current := ""
	if conv := lc.Conversation(); conv != nil {
		current = conv.ChatID()
	}
	respondJSON(w, http.StatusOK, struct {
		Current string        `json:"current"`
		Chats   []chatSummary `json:"chats"`
		Notices noticeList    `json:"notices,omitempty"`
	}{current, chats, *notes})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, _ *noticeList) {
	e, err := export.NewExporter(r.URL.Query().Get("format"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	now := s.now()
	lc := s.svc.Lifecycle()
	name := fmt.Sprintf("dudil_export_%s_%s.%s", lc.UserID(), now.Format("20060102_150405"), e.Extension())

	w.Header().Set("Content-Type", e.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := e.Export(lc.Export(now), w); err != nil {
		logger.L.Error("export failed", "error", err)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, notes *noticeList) {
	data, err := export.Read(http.MaxBytesReader(w, r.Body, maxBodyBytes), r.URL.Query().Get("format"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.finish(w, notes, s.svc.Lifecycle().Import(r.Context(), data))
}

type preferencesView struct {
	Preferences preferences.Preferences `json:"preferences"`
	Notices     noticeList              `json:"notices,omitempty"`
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, _ *http.Request, notes *noticeList) {
	respondJSON(w, http.StatusOK, preferencesView{s.svc.Lifecycle().Preferences(), *notes})
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request, notes *noticeList) {
	var p preferences.Preferences
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil || p == nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lc := s.svc.Lifecycle()
	if err := notes.collect(lc.SetPreferences(p)); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, preferencesView{lc.Preferences(), *notes})
}

// requestLogger logs each request through the application logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.L.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
