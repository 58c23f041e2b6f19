package crew

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ccastromar/aos-healthcare-assistant/internal/config"
	"github.com/ccastromar/aos-healthcare-assistant/internal/llm"
	"github.com/ccastromar/aos-healthcare-assistant/internal/tools"
)

type fakeLLM struct {
	mu      sync.Mutex
	answers []string
	err     error
	reqs    []llm.Request
}

func (f *fakeLLM) Ping(ctx context.Context) error { return nil }

func (f *fakeLLM) Chat(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.answers) == 0 {
		return "", nil
	}
	a := f.answers[0]
	f.answers = f.answers[1:]
	return a, nil
}

type fakeSearch struct {
	queries []string
	results []tools.SearchResult
	err     error
}

func (s *fakeSearch) Name() string        { return tools.SearchToolName }
func (s *fakeSearch) Description() string { return "fake search" }
func (s *fakeSearch) Run(ctx context.Context, q string) (string, error) {
	res, err := s.Search(ctx, q)
	if err != nil {
		return "", err
	}
	return tools.FormatResults(res), nil
}
func (s *fakeSearch) Search(ctx context.Context, q string) ([]tools.SearchResult, error) {
	s.queries = append(s.queries, q)
	return s.results, s.err
}

type fakeScrape struct {
	pages map[string]string
	urls  []string
}

func (s *fakeScrape) Name() string        { return tools.ScrapeToolName }
func (s *fakeScrape) Description() string { return "fake scrape" }
func (s *fakeScrape) Run(ctx context.Context, u string) (string, error) {
	s.urls = append(s.urls, u)
	p, ok := s.pages[u]
	if !ok {
		return "", errors.New("404")
	}
	return p, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Agents: map[string]config.Agent{
			"diagnostician": {
				Name: "diagnostician", Role: "Medical Diagnostician",
				Goal: "Analyze patient symptoms", Backstory: "Expert in diagnosis.",
				Tools: []string{tools.SearchToolName, tools.ScrapeToolName},
			},
			"treatment_advisor": {
				Name: "treatment_advisor", Role: "Treatment Advisor",
				Goal: "Recommend treatment plans", Backstory: "Specialist in treatment.",
			},
		},
		Tasks: map[string]config.Task{
			"diagnose": {
				Name: "diagnose", Agent: "diagnostician",
				Description:    "Analyze symptoms ({{ .symptoms }}) and history ({{ .medical_history }}).",
				ExpectedOutput: "A preliminary diagnosis.",
			},
			"treatment": {
				Name: "treatment", Agent: "treatment_advisor",
				Description:    "Recommend treatment for {{ .symptoms }}.",
				ExpectedOutput: "A treatment plan.",
			},
		},
		Crews: map[string]config.Crew{
			"healthcare": {
				Name: "healthcare", Process: "sequential",
				Agents: []string{"diagnostician", "treatment_advisor"},
				Tasks:  []string{"diagnose", "treatment"},
			},
		},
	}
}

var testInputs = map[string]string{
	"gender":          "Female",
	"age":             "34",
	"symptoms":        "fever, cough",
	"medical_history": "asthma",
}

func TestKickoff_SequentialWithContext(t *testing.T) {
	fl := &fakeLLM{answers: []string{"Final Answer: Likely influenza.", "Rest and fluids."}}
	search := &fakeSearch{results: []tools.SearchResult{
		{Title: "Flu", Link: "https://a.example/flu", Snippet: "fever"},
		{Title: "Cold", Link: "https://b.example/cold"},
		{Title: "Other", Link: "https://c.example/other"},
	}}
	scrape := &fakeScrape{pages: map[string]string{"https://a.example/flu": "Influenza page text"}}
	reg := tools.NewRegistry(search, scrape)

	var kinds []EventKind
	c, err := Build(testConfig(), "healthcare", reg, fl, Options{
		Temperature: 0.1, MaxTokens: 800,
		Observer: func(ev Event) { kinds = append(kinds, ev.Kind) },
	})
	require.NoError(t, err)

	out, err := c.Kickoff(context.Background(), testInputs)
	require.NoError(t, err)
	require.Equal(t, "Rest and fluids.", out.Raw)
	require.Equal(t, "Rest and fluids.", out.AsMap()["output"])
	require.Len(t, out.Tasks, 2)
	require.Equal(t, "Likely influenza.", out.Tasks[0].Raw)
	require.Equal(t, "Analyze symptoms (fever, cough) and history (asthma).", out.Tasks[0].Description)

	require.Len(t, fl.reqs, 2)
	require.Contains(t, fl.reqs[0].System, "You are Medical Diagnostician.")
	require.Contains(t, fl.reqs[0].Prompt, "Influenza page text")
	require.Equal(t, 0.1, fl.reqs[0].Temperature)
	require.Equal(t, 800, fl.reqs[0].MaxTokens)
	require.Contains(t, fl.reqs[1].Prompt, "Likely influenza.")
	require.NotContains(t, fl.reqs[1].Prompt, "Research notes")

	require.Equal(t, []string{"fever, cough asthma"}, search.queries)
	// only the first two hits are read; the second one fails and is skipped
	require.Equal(t, []string{"https://a.example/flu", "https://b.example/cold"}, scrape.urls)

	want := []EventKind{
		EventCrewStarted,
		EventTaskStarted, EventToolUsed, EventToolUsed, EventToolFailed, EventTaskCompleted,
		EventTaskStarted, EventTaskCompleted,
		EventCrewCompleted,
	}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestKickoff_DisabledSearchIsSilent(t *testing.T) {
	fl := &fakeLLM{answers: []string{"a", "b"}}
	reg := tools.NewRegistry(&fakeSearch{err: tools.ErrToolDisabled}, &fakeScrape{})

	var kinds []EventKind
	c, err := Build(testConfig(), "healthcare", reg, fl, Options{Observer: func(ev Event) { kinds = append(kinds, ev.Kind) }})
	require.NoError(t, err)

	_, err = c.Kickoff(context.Background(), testInputs)
	require.NoError(t, err)
	require.NotContains(t, kinds, EventToolFailed)
	require.NotContains(t, fl.reqs[0].Prompt, "Research notes")
}

func TestKickoff_LLMErrorFailsCrew(t *testing.T) {
	fl := &fakeLLM{err: errors.New("boom")}
	reg := tools.NewRegistry(&fakeSearch{}, &fakeScrape{})
	var last Event
	c, err := Build(testConfig(), "healthcare", reg, fl, Options{Observer: func(ev Event) { last = ev }})
	require.NoError(t, err)

	out, err := c.Kickoff(context.Background(), testInputs)
	require.Error(t, err)
	require.Nil(t, out)
	require.Contains(t, err.Error(), "boom")
	require.Equal(t, EventCrewFailed, last.Kind)
	require.Equal(t, "diagnose", last.Task)
}

func TestKickoff_EmptyAnswer(t *testing.T) {
	fl := &fakeLLM{answers: []string{"   "}}
	reg := tools.NewRegistry(&fakeSearch{}, &fakeScrape{})
	c, err := Build(testConfig(), "healthcare", reg, fl, Options{})
	require.NoError(t, err)

	_, err = c.Kickoff(context.Background(), testInputs)
	require.ErrorIs(t, err, ErrEmptyAnswer)
}

func TestKickoff_CanceledContext(t *testing.T) {
	fl := &fakeLLM{answers: []string{"a", "b"}}
	reg := tools.NewRegistry(&fakeSearch{}, &fakeScrape{})
	c, err := Build(testConfig(), "healthcare", reg, fl, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Kickoff(ctx, testInputs)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, fl.reqs)
}

func TestBuild_Errors(t *testing.T) {
	reg := tools.NewRegistry(&fakeSearch{}, &fakeScrape{})

	_, err := Build(testConfig(), "nope", reg, &fakeLLM{}, Options{})
	require.ErrorIs(t, err, ErrUnknownCrew)

	cfg := testConfig()
	a := cfg.Agents["diagnostician"]
	a.AllowDelegation = true
	cfg.Agents["diagnostician"] = a
	_, err = Build(cfg, "healthcare", reg, &fakeLLM{}, Options{})
	require.ErrorContains(t, err, "delegation")

	_, err = Build(testConfig(), "healthcare", tools.NewRegistry(), &fakeLLM{}, Options{})
	require.Error(t, err)
}

func TestBuildPrompt_TruncatesNotes(t *testing.T) {
	p := buildPrompt("desc", "exp", nil, []string{strings.Repeat("x", 50)}, 10)
	require.Contains(t, p, "xxxxxxxxxx...")
	require.NotContains(t, p, strings.Repeat("x", 11))
}

func TestCleanAnswer(t *testing.T) {
	require.Equal(t, "done", cleanAnswer("  Final Answer: done "))
	require.Equal(t, "Here is my final answer: rest", cleanAnswer("Here is my final answer: rest"))
}
