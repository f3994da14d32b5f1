// Package responder generates assistant replies with an OpenAI-compatible
// chat model, shaped by the emotion detected in the user's message.
package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/dudil-go/internal/config"
	"github.com/comigor/dudil-go/internal/history"
	"github.com/comigor/dudil-go/internal/llm"
	"github.com/comigor/dudil-go/internal/logger"
)

// Replies used when the model cannot produce one.
const (
	NoServiceReply = "I'm sorry, I couldn't connect to the AI service. Please check your API key."
	EmptyReply     = "I apologize, but I couldn't generate a proper response. Please try again."
	TroubleReply   = "I'm having trouble responding right now. Please try again."
)

const (
	// ContextMessages is how many trailing history messages are considered,
	// including the message being answered.
	ContextMessages = 6
	// ContextRunes bounds each history message quoted in the prompt.
	ContextRunes = 150

	temperature = 0.7
	topP        = 0.8
	maxTokens   = 1024
)

const emotionContextTemplate = `You are a helpful and empathetic AI assistant. The user's message has been analyzed for emotions:
- Detected emotion: %s
- Intensity: %d/5
- Confidence: %.1f%%

Respond appropriately based on their emotional state:
- Joy: Be enthusiastic and share their positive feelings
- Love: Be warm and supportive of their affection
- Sadness: Be empathetic, comforting, and supportive
- Anger: Be calm, understanding, and help them process feelings
- Fear: Be reassuring and help alleviate concerns
- Surprise: Be engaging and explore their reaction`

// Generator produces assistant replies. A Generator with a nil client
// always answers NoServiceReply.
type Generator struct {
	client llm.Client
	cfg    config.LLMConfig
}

func New(client llm.Client, cfg config.LLMConfig) *Generator {
	return &Generator{client: client, cfg: cfg}
}

// Generate answers text. history is the conversation so far, ending with
// the user message being answered. It never fails: on a model error one
// minimal retry is made before falling back to a fixed apology.
func (g *Generator) Generate(ctx context.Context, text string, analysis history.EmotionAnalysis, messages []history.Message) string {
	if g == nil || g.client == nil {
		return NoServiceReply
	}

	prompt := BuildPrompt(text, analysis, messages)
	reply, err := g.complete(ctx, prompt, true)
	if err == nil {
		if reply == "" {
			return EmptyReply
		}
		return reply
	}
	logger.L.Warn("response generation failed, retrying with minimal prompt", "model", g.cfg.Model, "error", err)

	reply, err = g.complete(ctx, "Please respond to: "+text, false)
	if err != nil {
		logger.L.Error("minimal response retry failed", "model", g.cfg.Model, "error", err)
		return TroubleReply
	}
	if reply == "" {
		return TroubleReply
	}
	return reply
}

func (g *Generator) complete(ctx context.Context, prompt string, tuned bool) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if g.cfg.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: g.cfg.SystemPrompt})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{Model: g.cfg.Model, Messages: msgs}
	if tuned {
		req.Temperature = temperature
		req.TopP = topP
		req.MaxTokens = maxTokens
	}
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	return llm.FirstContent(resp), nil
}

// BuildPrompt assembles the emotion context, the recent conversation and
// the current message into a single prompt.
func BuildPrompt(text string, analysis history.EmotionAnalysis, messages []history.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, emotionContextTemplate, analysisLabel(analysis), analysis.Intensity, analysis.Confidence*100)

	if len(messages) > 1 {
		recent := messages[max(0, len(messages)-ContextMessages) : len(messages)-1]
		b.WriteString("\n\nRecent conversation context:\n")
		for _, m := range recent {
			role := "Assistant"
			if m.Role == history.RoleUser {
				role = "User"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, truncate(m.Content, ContextRunes))
		}
	}

	fmt.Fprintf(&b, "\n\nUser's current message: %s\n\nYour response:", text)
	return b.String()
}

func analysisLabel(a history.EmotionAnalysis) string {
	if a.Emotion == "" {
		return "neutral"
	}
	return a.Emotion
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
