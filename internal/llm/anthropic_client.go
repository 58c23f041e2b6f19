package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ccastromar/aos-healthcare-assistant/internal/metrics"
)

// AnthropicClient talks to the Messages API through the official SDK.
type AnthropicClient struct {
	inner   anthropic.Client
	model   anthropic.Model
	Timeout time.Duration
}

var _ LLMClient = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client; baseURL may be empty.
func NewAnthropicClient(baseURL, apiKey, model string, opts ...option.RequestOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is empty")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)

	m := anthropic.Model(model)
	if model == "" {
		m = anthropic.ModelClaudeSonnet4_20250514
	}
	return &AnthropicClient{
		inner:   anthropic.NewClient(reqOpts...),
		model:   m,
		Timeout: 3 * time.Minute,
	}, nil
}

func (c *AnthropicClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := c.inner.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		metrics.LLMPings.Inc(map[string]string{"provider": "anthropic", "outcome": "error"})
		return fmt.Errorf("anthropic ping failed: %w", err)
	}
	metrics.LLMPings.Inc(map[string]string{"provider": "anthropic", "outcome": "ok"})
	return nil
}

func (c *AnthropicClient) Chat(ctx context.Context, r Request) (string, error) {
	maxTokens := r.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(r.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(r.Prompt)),
		},
	}
	if r.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: r.System}}
	}

	to := c.Timeout
	if to <= 0 {
		to = 3 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, to)
	defer cancel()

	start := time.Now()
	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		metrics.LLMChats.Inc(map[string]string{"provider": "anthropic", "outcome": "error"})
		return "", fmt.Errorf("anthropic chat failed: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(variant.Text)
		}
	}
	if b.Len() == 0 {
		metrics.LLMChats.Inc(map[string]string{"provider": "anthropic", "outcome": "error"})
		return "", fmt.Errorf("anthropic: empty response")
	}

	metrics.LLMChats.Inc(map[string]string{"provider": "anthropic", "outcome": "ok"})
	metrics.LLMChatDur.Observe(map[string]string{"provider": "anthropic", "outcome": "ok"}, time.Since(start).Seconds())
	return b.String(), nil
}
