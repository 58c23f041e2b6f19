package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ccastromar/aos-healthcare-assistant/internal/logx"
	"github.com/ccastromar/aos-healthcare-assistant/internal/metrics"
	"github.com/ccastromar/aos-healthcare-assistant/internal/tools"
)

var (
	ErrUnknownCrew = errors.New("unknown crew")
	ErrEmptyAnswer = errors.New("empty answer from llm")
)

// maxScrapedPages bounds how many search hits an agent reads per task.
const maxScrapedPages = 2

// Crew runs its tasks sequentially; each task sees the outputs of the
// previous ones as context.
type Crew struct {
	Name        string
	Agents      []*Agent
	Tasks       []*Task
	Verbose     bool
	Temperature float64
	MaxTokens   int
	Observer    Observer
}

type searcher interface {
	Search(ctx context.Context, query string) ([]tools.SearchResult, error)
}

// Kickoff executes every task in order with inputs interpolated into the
// task descriptions.
func (c *Crew) Kickoff(ctx context.Context, inputs map[string]string) (*Output, error) {
	if len(c.Tasks) == 0 {
		return nil, fmt.Errorf("crew %s has no tasks", c.Name)
	}
	c.emit(Event{Kind: EventCrewStarted, Crew: c.Name, Message: fmt.Sprintf("%d tasks", len(c.Tasks))})
	start := time.Now()

	out := &Output{Crew: c.Name, Tasks: make([]TaskOutput, 0, len(c.Tasks))}
	for _, t := range c.Tasks {
		if err := ctx.Err(); err != nil {
			c.emit(Event{Kind: EventCrewFailed, Crew: c.Name, Task: t.Name, Message: err.Error()})
			return nil, err
		}
		to, err := c.runTask(ctx, t, inputs, out.Tasks)
		if err != nil {
			c.emit(Event{Kind: EventCrewFailed, Crew: c.Name, Task: t.Name, Message: err.Error()})
			return nil, err
		}
		out.Tasks = append(out.Tasks, *to)
	}
	out.Raw = out.Tasks[len(out.Tasks)-1].Raw

	c.emit(Event{Kind: EventCrewCompleted, Crew: c.Name, Duration: time.Since(start)})
	return out, nil
}

func (c *Crew) runTask(ctx context.Context, t *Task, inputs map[string]string, previous []TaskOutput) (*TaskOutput, error) {
	a := t.Agent
	if a == nil || a.LLM == nil {
		return nil, fmt.Errorf("task %s has no agent", t.Name)
	}
	start := time.Now()
	c.emit(Event{Kind: EventTaskStarted, Crew: c.Name, Task: t.Name, Agent: a.Role})

	desc, err := tools.RenderTemplateString(t.Description, inputs)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.Name, err)
	}

	notes := c.gatherNotes(ctx, t, inputs)
	prompt := buildPrompt(desc, t.ExpectedOutput, previous, notes, a.MaxContextChars)

	if c.Verbose || a.Verbose {
		logx.Debug("Crew", "[%s] agent=%s task=%s prompt=%d chars", c.Name, a.Role, t.Name, len(prompt))
	}

	raw, err := a.LLM.Chat(ctx, llmRequest(a, prompt, c.Temperature, c.MaxTokens))
	elapsed := time.Since(start)
	metrics.CrewTaskDur.Observe(map[string]string{"crew": c.Name, "task": t.Name}, elapsed.Seconds())
	if err != nil {
		metrics.CrewTasks.Inc(map[string]string{"crew": c.Name, "task": t.Name, "outcome": "error"})
		return nil, fmt.Errorf("task %s (%s): %w", t.Name, a.Role, err)
	}
	answer := cleanAnswer(raw)
	if answer == "" {
		metrics.CrewTasks.Inc(map[string]string{"crew": c.Name, "task": t.Name, "outcome": "error"})
		return nil, fmt.Errorf("task %s (%s): %w", t.Name, a.Role, ErrEmptyAnswer)
	}
	metrics.CrewTasks.Inc(map[string]string{"crew": c.Name, "task": t.Name, "outcome": "ok"})

	c.emit(Event{Kind: EventTaskCompleted, Crew: c.Name, Task: t.Name, Agent: a.Role, Message: preview(answer), Duration: elapsed})
	return &TaskOutput{
		Task:        t.Name,
		Agent:       a.Role,
		Description: desc,
		Raw:         answer,
		ToolNotes:   notes,
		Duration:    elapsed,
	}, nil
}

// gatherNotes runs the agent's search tool and reads the top hits with the
// scrape tool. Tool failures are reported as events and never fail the task.
func (c *Crew) gatherNotes(ctx context.Context, t *Task, inputs map[string]string) []string {
	a := t.Agent
	search, ok := a.tool(tools.SearchToolName)
	if !ok {
		return nil
	}
	query, err := searchQuery(t, inputs)
	if err != nil || query == "" {
		return nil
	}

	var notes []string
	var links []string
	if s, ok := search.(searcher); ok {
		results, err := s.Search(ctx, query)
		if err != nil {
			c.toolFailed(t, search.Name(), err)
			return nil
		}
		notes = append(notes, tools.FormatResults(results))
		for _, r := range results {
			if r.Link != "" {
				links = append(links, r.Link)
			}
		}
	} else {
		text, err := search.Run(ctx, query)
		if err != nil {
			c.toolFailed(t, search.Name(), err)
			return nil
		}
		notes = append(notes, text)
	}
	c.emit(Event{Kind: EventToolUsed, Crew: c.Name, Task: t.Name, Agent: a.Role, Message: search.Name() + ": " + query})

	scrape, ok := a.tool(tools.ScrapeToolName)
	if !ok {
		return notes
	}
	for i, link := range links {
		if i >= maxScrapedPages || ctx.Err() != nil {
			break
		}
		text, err := scrape.Run(ctx, link)
		if err != nil {
			c.toolFailed(t, scrape.Name(), err)
			continue
		}
		if text == "" {
			continue
		}
		notes = append(notes, fmt.Sprintf("Content of %s:\n%s", link, text))
		c.emit(Event{Kind: EventToolUsed, Crew: c.Name, Task: t.Name, Agent: a.Role, Message: scrape.Name() + ": " + link})
	}
	return notes
}

func (c *Crew) toolFailed(t *Task, tool string, err error) {
	if errors.Is(err, tools.ErrToolDisabled) {
		logx.Debug("Crew", "[%s] tool %s disabled, skipping", c.Name, tool)
		return
	}
	logx.Warn("Crew", "[%s] task=%s tool=%s failed: %v", c.Name, t.Name, tool, err)
	c.emit(Event{Kind: EventToolFailed, Crew: c.Name, Task: t.Name, Agent: t.Agent.Role, Message: tool + ": " + err.Error()})
}

func searchQuery(t *Task, inputs map[string]string) (string, error) {
	tpl := t.SearchQuery
	if tpl == "" {
		tpl = "{{ .symptoms }} {{ .medical_history }}"
	}
	q, err := tools.RenderTemplateString(tpl, inputs)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(q), " "), nil
}

func (c *Crew) emit(ev Event) {
	if c.Observer != nil {
		c.Observer(ev)
	}
}

func preview(s string) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) > 120 {
		return string(r[:120]) + "..."
	}
	return string(r)
}
