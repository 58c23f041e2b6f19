package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/ccastromar/aos-healthcare-assistant/internal/metrics"
)

// GenAIClient calls Gemini models through google.golang.org/genai.
type GenAIClient struct {
	client  *genai.Client
	model   string
	Timeout time.Duration
}

var _ LLMClient = (*GenAIClient)(nil)

func NewGenAIClient(ctx context.Context, baseURL, apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIClient{client: client, model: model, Timeout: 3 * time.Minute}, nil
}

func (c *GenAIClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := c.client.Models.Get(ctx, c.model, nil); err != nil {
		metrics.LLMPings.Inc(map[string]string{"provider": "gemini", "outcome": "error"})
		return fmt.Errorf("gemini ping failed: %w", err)
	}
	metrics.LLMPings.Inc(map[string]string{"provider": "gemini", "outcome": "ok"})
	return nil
}

func (c *GenAIClient) Chat(ctx context.Context, r Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(r.Temperature)),
	}
	if r.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(r.MaxTokens)
	}
	if r.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(r.System, genai.RoleUser)
	}

	to := c.Timeout
	if to <= 0 {
		to = 3 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, to)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(r.Prompt), cfg)
	if err != nil {
		metrics.LLMChats.Inc(map[string]string{"provider": "gemini", "outcome": "error"})
		return "", fmt.Errorf("gemini chat failed: %w", err)
	}
	out := resp.Text()
	if out == "" {
		metrics.LLMChats.Inc(map[string]string{"provider": "gemini", "outcome": "error"})
		return "", fmt.Errorf("gemini: empty response")
	}
	metrics.LLMChats.Inc(map[string]string{"provider": "gemini", "outcome": "ok"})
	metrics.LLMChatDur.Observe(map[string]string{"provider": "gemini", "outcome": "ok"}, time.Since(start).Seconds())
	return out, nil
}
