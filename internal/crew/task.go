package crew

import (
	"strings"
	"time"
)

type Task struct {
	Name           string
	Description    string
	ExpectedOutput string
	SearchQuery    string
	Agent          *Agent
}

// TaskOutput is what one task produced.
type TaskOutput struct {
	Task        string        `json:"task"`
	Agent       string        `json:"agent"`
	Description string        `json:"description"`
	Raw         string        `json:"raw"`
	ToolNotes   []string      `json:"tool_notes,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Output is the result of a crew kickoff. Raw is the last task's output.
type Output struct {
	Crew  string       `json:"crew"`
	Raw   string       `json:"raw"`
	Tasks []TaskOutput `json:"tasks"`
}

func (o *Output) String() string {
	if o == nil {
		return ""
	}
	return o.Raw
}

// AsMap exposes the output as a mapping with an "output" key.
func (o *Output) AsMap() map[string]any {
	return map[string]any{
		"output": o.Raw,
		"crew":   o.Crew,
		"tasks":  o.Tasks,
	}
}

func buildPrompt(description, expected string, previous []TaskOutput, notes []string, maxChars int) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(description))
	b.WriteString("\n\nThis is the expected criteria for your final answer: ")
	b.WriteString(strings.TrimSpace(expected))
	b.WriteString("\nYou MUST return the actual complete content as the final answer, not a summary.")

	if len(previous) > 0 {
		b.WriteString("\n\nThis is the context you're working with:\n")
		for _, p := range previous {
			b.WriteString("----- ")
			b.WriteString(p.Agent)
			b.WriteString(" -----\n")
			b.WriteString(strings.TrimSpace(p.Raw))
			b.WriteString("\n")
		}
	}

	if len(notes) > 0 {
		joined := strings.Join(notes, "\n\n")
		if maxChars > 0 {
			if r := []rune(joined); len(r) > maxChars {
				joined = string(r[:maxChars]) + "..."
			}
		}
		b.WriteString("\n\nResearch notes gathered with your tools:\n")
		b.WriteString(joined)
	}

	b.WriteString("\n\nBegin! Give your best final answer.")
	return b.String()
}

// cleanAnswer drops a leading "Final Answer:" marker some models echo back.
func cleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(strings.ToLower(s), "final answer:"); i >= 0 && i < 8 {
		s = strings.TrimSpace(s[i+len("final answer:"):])
	}
	return s
}
