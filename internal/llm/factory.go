package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Settings selects and configures a provider.
type Settings struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// New returns the client for s.Provider (openai when empty).
func New(ctx context.Context, s Settings) (LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(s.Provider)) {
	case "", "openai":
		c := NewOpenAIClient(s.BaseURL, s.APIKey, s.Model)
		if s.Timeout > 0 {
			c.Timeout = s.Timeout
			c.HTTP.Timeout = s.Timeout
		}
		return c, nil
	case "ollama":
		c := NewOllamaClient(s.BaseURL, s.Model)
		if s.Timeout > 0 {
			c.Timeout = s.Timeout
			c.HTTPClient.Timeout = s.Timeout
		}
		return c, nil
	case "anthropic":
		c, err := NewAnthropicClient(s.BaseURL, s.APIKey, s.Model)
		if err != nil {
			return nil, err
		}
		if s.Timeout > 0 {
			c.Timeout = s.Timeout
		}
		return c, nil
	case "gemini", "genai":
		c, err := NewGenAIClient(ctx, s.BaseURL, s.APIKey, s.Model)
		if err != nil {
			return nil, err
		}
		if s.Timeout > 0 {
			c.Timeout = s.Timeout
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", s.Provider)
	}
}
