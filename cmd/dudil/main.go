package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/comigor/dudil-go/internal/api"
	"github.com/comigor/dudil-go/internal/chat"
	"github.com/comigor/dudil-go/internal/chatstore"
	"github.com/comigor/dudil-go/internal/config"
	"github.com/comigor/dudil-go/internal/emotion"
	"github.com/comigor/dudil-go/internal/identity"
	"github.com/comigor/dudil-go/internal/lifecycle"
	"github.com/comigor/dudil-go/internal/llm"
	"github.com/comigor/dudil-go/internal/logger"
	"github.com/comigor/dudil-go/internal/preferences"
	"github.com/comigor/dudil-go/internal/responder"
	"github.com/comigor/dudil-go/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.L.Warn("failed to load .env", "error", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	userID := identity.NewProvider(filepath.Join(cfg.Storage.DataDir, identity.DefaultMarkerFile)).GetOrCreateUserID()

	store, err := chatstore.Open(cfg.Storage)
	if err != nil {
		logger.L.Error("failed to open chat store", "error", err)
		os.Exit(1)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	ids, err := session.NewIDGenerator(cfg.Storage.ChatIDStrategy)
	if err != nil {
		logger.L.Error("invalid chat id strategy", "error", err)
		os.Exit(1)
	}

	lc := lifecycle.New(userID, store,
		lifecycle.WithIDGenerator(ids),
		lifecycle.WithPreferences(preferences.NewStore(cfg.Storage.DataDir)),
		lifecycle.WithTimeout(time.Duration(cfg.Session.TimeoutMinutes)*time.Minute),
	)
	if err := lc.Start(context.Background()); err != nil {
		if !lifecycle.IsWarning(err) {
			logger.L.Error("failed to start session", "error", err)
			os.Exit(1)
		}
		logger.L.Warn("session started with notice", "notice", err)
	}

	annotator := newAnnotator(cfg)
	logger.L.Info("emotion annotator ready", "model", annotator.ModelID())
	svc := chat.NewService(lc, annotator, newResponder(cfg))
	server := api.New(svc)

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:     server.Routes(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.L.Info("starting server", "address", srv.Addr, "user_id", userID, "storage", cfg.Storage.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("server forced to shutdown", "error", err)
	}
	logger.L.Info("server stopped")
}

// newAnnotator builds the emotion annotator. The llm backend reuses the
// responder's endpoint and key unless the emotion section sets its own.
func newAnnotator(cfg *config.Config) *emotion.Annotator {
	if cfg.Emotion.Backend == config.EmotionKeyword {
		return emotion.NewAnnotator(emotion.KeywordClassifier{}, "keyword")
	}

	apiKey, baseURL, model := cfg.Emotion.APIKey, cfg.Emotion.BaseURL, cfg.Emotion.Model
	if apiKey == "" {
		apiKey = cfg.LLM.APIKey
	}
	if baseURL == "" {
		baseURL = cfg.LLM.BaseURL
	}
	if model == "" {
		model = cfg.LLM.Model
	}
	if apiKey == "" || model == "" {
		logger.L.Warn("emotion classifier not configured; falling back to keyword classifier")
		return emotion.NewAnnotator(emotion.KeywordClassifier{}, "keyword")
	}
	return emotion.NewAnnotator(emotion.NewLLMClassifier(llm.NewClient(apiKey, baseURL), model), model)
}

// newResponder returns nil when no model is configured, which makes the
// chat refuse messages until one is.
func newResponder(cfg *config.Config) chat.Responder {
	if !cfg.LLM.Enabled() {
		logger.L.Warn("llm api key or model not set; sending messages is disabled")
		return nil
	}
	return responder.New(llm.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL), cfg.LLM)
}
