package crew

import (
	"fmt"

	"github.com/ccastromar/aos-healthcare-assistant/internal/config"
	"github.com/ccastromar/aos-healthcare-assistant/internal/llm"
	"github.com/ccastromar/aos-healthcare-assistant/internal/tools"
)

// Options are the sampling settings shared by every agent of a crew.
type Options struct {
	Temperature float64
	MaxTokens   int
	Observer    Observer
}

// Build assembles the named crew from loaded definitions.
func Build(cfg *config.Config, name string, reg *tools.Registry, client llm.LLMClient, opts Options) (*Crew, error) {
	def, ok := cfg.Crews[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCrew, name)
	}

	agents := make(map[string]*Agent, len(def.Agents))
	ordered := make([]*Agent, 0, len(def.Agents))
	for _, an := range def.Agents {
		ad, ok := cfg.Agents[an]
		if !ok {
			return nil, fmt.Errorf("crew %s: agent %s not found", name, an)
		}
		if ad.AllowDelegation {
			return nil, fmt.Errorf("crew %s: agent %s: delegation is not supported", name, an)
		}
		ts, err := reg.Resolve(ad.Tools)
		if err != nil {
			return nil, fmt.Errorf("crew %s: agent %s: %w", name, an, err)
		}
		a := &Agent{
			Name:            ad.Name,
			Role:            ad.Role,
			Goal:            ad.Goal,
			Backstory:       ad.Backstory,
			Tools:           ts,
			LLM:             client,
			Verbose:         ad.Verbose,
			MaxContextChars: ad.MaxContextChars,
		}
		agents[an] = a
		ordered = append(ordered, a)
	}

	tasks := make([]*Task, 0, len(def.Tasks))
	for _, tn := range def.Tasks {
		td, ok := cfg.Tasks[tn]
		if !ok {
			return nil, fmt.Errorf("crew %s: task %s not found", name, tn)
		}
		a, ok := agents[td.Agent]
		if !ok {
			return nil, fmt.Errorf("crew %s: task %s: agent %s is not a crew member", name, tn, td.Agent)
		}
		tasks = append(tasks, &Task{
			Name:           td.Name,
			Description:    td.Description,
			ExpectedOutput: td.ExpectedOutput,
			SearchQuery:    td.SearchQuery,
			Agent:          a,
		})
	}

	return &Crew{
		Name:        name,
		Agents:      ordered,
		Tasks:       tasks,
		Verbose:     def.Verbose,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Observer:    opts.Observer,
	}, nil
}
