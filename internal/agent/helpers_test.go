package agent

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ccastromar/aos-healthcare-assistant/internal/bus"
	"github.com/ccastromar/aos-healthcare-assistant/internal/config"
	"github.com/ccastromar/aos-healthcare-assistant/internal/llm"
	"github.com/ccastromar/aos-healthcare-assistant/internal/runtime"
	"github.com/ccastromar/aos-healthcare-assistant/internal/store"
	"github.com/ccastromar/aos-healthcare-assistant/internal/tools"
	"github.com/ccastromar/aos-healthcare-assistant/internal/ui"
)

// scriptedLLM answers with the agent role unless chat is set.
type scriptedLLM struct {
	mu    sync.Mutex
	calls int
	chat  func(ctx context.Context, req llm.Request) (string, error)
}

func (s *scriptedLLM) Ping(ctx context.Context) error { return nil }

func (s *scriptedLLM) Chat(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.chat != nil {
		return s.chat(ctx, req)
	}
	if strings.Contains(req.System, "Treatment Advisor") {
		return "**Plan**: rest, fluids and paracetamol.", nil
	}
	return "Likely viral influenza.", nil
}

func (s *scriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// blockingLLM waits for the context to end.
func blockingLLM() *scriptedLLM {
	return &scriptedLLM{chat: func(ctx context.Context, req llm.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
}

func testDefinitions() *config.Config {
	return &config.Config{
		Agents: map[string]config.Agent{
			"diagnostician":     {Name: "diagnostician", Role: "Medical Diagnostician", Goal: "diagnose"},
			"treatment_advisor": {Name: "treatment_advisor", Role: "Treatment Advisor", Goal: "treat"},
		},
		Tasks: map[string]config.Task{
			"diagnose":  {Name: "diagnose", Agent: "diagnostician", Description: "Symptoms: {{ .symptoms }}", ExpectedOutput: "diagnosis"},
			"treatment": {Name: "treatment", Agent: "treatment_advisor", Description: "History: {{ .medical_history }}", ExpectedOutput: "plan"},
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

type fixture struct {
	bus    *bus.Bus
	db     *store.DB
	ui     *ui.UIStore
	rt     *runtime.Runtime
	runner *CrewRunner
}

func newFixture(t *testing.T, client llm.LLMClient, timeout time.Duration) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "medcrew.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	b := bus.New()
	uiStore := ui.NewUIStore()
	rt := runtime.New(testDefinitions(), client, db)
	runner := NewCrewRunner(b, rt, tools.NewRegistry(), db, uiStore, RunnerOptions{
		DefaultCrew: "healthcare",
		Timeout:     timeout,
		Temperature: 0.1,
		MaxTokens:   512,
		Workers:     2,
	})
	b.Subscribe(RunnerTarget, runner.Inbox())
	return &fixture{bus: b, db: db, ui: uiStore, rt: rt, runner: runner}
}

// start launches the runner workers until the test ends.
func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = f.runner.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func (f *fixture) waitStatus(t *testing.T, id string, want store.Status) *store.Consultation {
	t.Helper()
	var rec *store.Consultation
	require.Eventually(t, func() bool {
		r, err := f.db.Get(id)
		if err != nil {
			return false
		}
		rec = r
		return r.Status == want
	}, 3*time.Second, 10*time.Millisecond, "consultation %s never reached %s", id, want)
	return rec
}

func hasTaskContext(id string) bool {
	taskCtxMu.RLock()
	defer taskCtxMu.RUnlock()
	_, ok := taskCtx[id]
	return ok
}
