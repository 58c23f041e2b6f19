package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_SelectsProvider(t *testing.T) {
	ctx := context.Background()

	c, err := New(ctx, Settings{APIKey: "k", Timeout: time.Second})
	require.NoError(t, err)
	oa, ok := c.(*OpenAIClient)
	require.True(t, ok)
	require.Equal(t, time.Second, oa.Timeout)

	c, err = New(ctx, Settings{Provider: "Ollama", BaseURL: "http://localhost:11434", Model: "qwen3:0.6b"})
	require.NoError(t, err)
	require.IsType(t, &OllamaClient{}, c)

	c, err = New(ctx, Settings{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	require.IsType(t, &AnthropicClient{}, c)

	c, err = New(ctx, Settings{Provider: "gemini", APIKey: "k"})
	require.NoError(t, err)
	require.IsType(t, &GenAIClient{}, c)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), Settings{Provider: "mystery"})
	require.ErrorContains(t, err, "unknown llm provider")

	_, err = New(context.Background(), Settings{Provider: "anthropic"})
	require.Error(t, err)

	_, err = New(context.Background(), Settings{Provider: "gemini"})
	require.Error(t, err)
}

func TestNew_TimeoutAppliesToHTTPClient(t *testing.T) {
	ctx := context.Background()
	long := 10 * time.Minute

	c, err := New(ctx, Settings{APIKey: "k", Timeout: long})
	require.NoError(t, err)
	oa := c.(*OpenAIClient)
	require.Equal(t, long, oa.Timeout)
	require.Equal(t, long, oa.HTTP.Timeout)

	c, err = New(ctx, Settings{Provider: "ollama", Model: "qwen3:0.6b", Timeout: long})
	require.NoError(t, err)
	ol := c.(*OllamaClient)
	require.Equal(t, long, ol.Timeout)
	require.Equal(t, long, ol.HTTPClient.Timeout)
}
