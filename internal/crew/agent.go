package crew

import (
	"fmt"
	"strings"

	"github.com/ccastromar/aos-healthcare-assistant/internal/llm"
	"github.com/ccastromar/aos-healthcare-assistant/internal/tools"
)

// Agent is a persona bound to an LLM and an optional tool set.
type Agent struct {
	Name            string
	Role            string
	Goal            string
	Backstory       string
	Tools           []tools.Tool
	LLM             llm.LLMClient
	Verbose         bool
	MaxContextChars int
}

// SystemPrompt renders the persona sent as the system message.
func (a *Agent) SystemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", a.Role)
	if bs := strings.TrimSpace(a.Backstory); bs != "" {
		b.WriteString(" ")
		b.WriteString(bs)
	}
	if g := strings.TrimSpace(a.Goal); g != "" {
		fmt.Fprintf(&b, "\nYour personal goal is: %s", g)
	}
	return b.String()
}

func (a *Agent) tool(name string) (tools.Tool, bool) {
	for _, t := range a.Tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}
