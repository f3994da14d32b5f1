package emotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/dudil-go/internal/history"
	"github.com/comigor/dudil-go/internal/llm"
)

// Labels are the emotions every classifier scores.
var Labels = []string{"sadness", "joy", "love", "anger", "fear", "surprise"}

const classifierSystemPrompt = `You are an emotion classifier. Score the user's text against each of these labels: sadness, joy, love, anger, fear, surprise.
Reply with only a JSON object mapping every label to a probability between 0 and 1. The probabilities should sum to 1.
Example: {"sadness":0.05,"joy":0.7,"love":0.1,"anger":0.05,"fear":0.05,"surprise":0.05}`

// LLMClassifier asks a chat model for per-label probabilities.
type LLMClassifier struct {
	client llm.Client
	model  string
}

func NewLLMClassifier(client llm.Client, model string) *LLMClassifier {
	return &LLMClassifier{client: client, model: model}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) ([]history.LabelScore, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("classifier request: %w", err)
	}
	return parseScores(llm.FirstContent(resp))
}

// parseScores reads the model's JSON object, tolerating code fences and
// surrounding prose. Labels outside Labels are dropped.
func parseScores(content string) ([]history.LabelScore, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, errors.New("classifier output has no JSON object")
	}
	var raw map[string]float64
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode classifier output: %w", err)
	}

	normalized := make(map[string]float64, len(raw))
	for k, v := range raw {
		normalized[strings.ToLower(strings.TrimSpace(k))] = v
	}
	scores := make([]history.LabelScore, 0, len(Labels))
	for _, label := range Labels {
		if v, ok := normalized[label]; ok {
			scores = append(scores, history.LabelScore{Label: label, Score: clamp01(v)})
		}
	}
	if len(scores) == 0 {
		return nil, errors.New("classifier output has no known labels")
	}
	return scores, nil
}
