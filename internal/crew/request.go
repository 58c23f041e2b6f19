package crew

import "github.com/ccastromar/aos-healthcare-assistant/internal/llm"

func llmRequest(a *Agent, prompt string, temperature float64, maxTokens int) llm.Request {
	return llm.Request{
		System:      a.SystemPrompt(),
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}
