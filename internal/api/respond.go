package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/comigor/dudil-go/internal/chat"
	"github.com/comigor/dudil-go/internal/lifecycle"
	"github.com/comigor/dudil-go/internal/logger"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		logger.L.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps a failed operation to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrChatNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrCollaboratorUnavailable), errors.Is(err, lifecycle.ErrNoSession):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// noticeView is the user-visible part of a lifecycle Notice.
type noticeView struct {
	Level   lifecycle.Level `json:"level"`
	Message string          `json:"message"`
}

type noticeList []noticeView

// collect keeps a Notice for the response and returns any other error
// unchanged.
func (n *noticeList) collect(err error) error {
	if err == nil {
		return nil
	}
	var notice *lifecycle.Notice
	if errors.As(err, &notice) {
		*n = append(*n, noticeView{Level: notice.Level, Message: notice.Error()})
		return nil
	}
	return err
}
