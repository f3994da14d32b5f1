package llm

import (
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func TestFirstContent(t *testing.T) {
	require.Equal(t, "", FirstContent(openai.ChatCompletionResponse{}))
	resp := openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Content: "  hello \n"}},
		{Message: openai.ChatCompletionMessage{Content: "ignored"}},
	}}
	require.Equal(t, "hello", FirstContent(resp))
}

func TestNewClientImplementsClient(t *testing.T) {
	var c Client = NewClient("key", "https://example.com/v1/")
	require.NotNil(t, c)
}
