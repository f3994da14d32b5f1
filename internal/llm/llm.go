// Package llm builds OpenAI-compatible chat completion clients.
package llm

import (
	"strings"

	"github.com/sashabaranov/go-openai"
)

// NewClient creates a client for an OpenAI-compatible endpoint. An empty
// baseURL keeps the library default.
func NewClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return openai.NewClientWithConfig(cfg)
}

// FirstContent returns the trimmed text of the first choice, or "".
func FirstContent(resp openai.ChatCompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}
