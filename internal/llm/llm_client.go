package llm

import "context"

// Request is a single-turn chat call. System carries the agent persona,
// Prompt the rendered task.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

type LLMClient interface {
	Ping(ctx context.Context) error
	Chat(ctx context.Context, req Request) (string, error)
}
