package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ccastromar/aos-healthcare-assistant/internal/agent"
	"github.com/ccastromar/aos-healthcare-assistant/internal/bus"
	"github.com/ccastromar/aos-healthcare-assistant/internal/config"
)

// fakeAgent implements agent.Agent for testing App.Run lifecycle.
type fakeAgent struct {
	started atomic.Bool
	ch      chan bus.Message
}

func (f *fakeAgent) Start(ctx context.Context) error {
	f.started.Store(true)
	<-ctx.Done()
	return nil
}

func (f *fakeAgent) Inbox() chan bus.Message {
	if f.ch == nil {
		f.ch = make(chan bus.Message, 1)
	}
	return f.ch
}

var _ agent.Agent = (*fakeAgent)(nil)

// repoRoot returns the module root so the shipped definitions can be loaded.
func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, _ := runtime.Caller(0)
	return filepath.Clean(filepath.Join(filepath.Dir(file), "../.."))
}

func testEnv(t *testing.T, llmURL string) *config.EnvVars {
	t.Helper()
	return &config.EnvVars{
		AppEnv:         "test",
		Port:           "0",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   time.Minute,
		BusWorkers:     1,
		BusBuffer:      8,
		LLMProvider:    "openai",
		LLMApiKey:      "test-key",
		LLMBaseURL:     llmURL,
		LLMModel:       "mock-gpt",
		LLMTemperature: 0.1,
		LLMMaxTokens:   800,
		LLMTimeout:     10 * time.Second,
		DefinitionsDir: filepath.Join(repoRoot(t), "definitions"),
		DefaultCrew:    "healthcare",
		DBPath:         filepath.Join(t.TempDir(), "medcrew.db"),
		ConsultTimeout: 30 * time.Second,
		RateLimit:      100,
		RateWindow:     time.Minute,
	}
}

func TestNew_ConstructsApp(t *testing.T) {
	a, err := New(testEnv(t, "http://127.0.0.1:1/v1"))
	require.NoError(t, err)
	t.Cleanup(func() { a.db.Close() })

	require.NotNil(t, a.rt.Definitions())
	require.NotNil(t, a.bus)
	require.NotNil(t, a.ui)
	require.NotNil(t, a.http)
	require.NotEmpty(t, a.agents)
	require.Nil(t, a.watcher)
}

func TestNew_UnknownDefaultCrew(t *testing.T) {
	env := testEnv(t, "")
	env.DefaultCrew = "cardiology"
	_, err := New(env)
	require.ErrorContains(t, err, "cardiology")
}

func TestNew_MissingDefinitions(t *testing.T) {
	env := testEnv(t, "")
	env.DefinitionsDir = filepath.Join(t.TempDir(), "nope")
	_, err := New(env)
	require.Error(t, err)
}

func TestHTTPServer_Routes(t *testing.T) {
	a, err := New(testEnv(t, "http://127.0.0.1:1/v1"))
	require.NoError(t, err)
	t.Cleanup(func() { a.db.Close() })

	ts := httptest.NewServer(a.http.srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	require.Contains(t, resp.Header.Get("Content-Security-Policy"), "script-src 'none'")

	req, _ := http.NewRequest(http.MethodTrace, ts.URL+"/", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `medcrew_http_requests_total{method="GET",path="/health/live",status="200"}`)
}

func TestAppRun_StartsAgentsAndHTTP_AndStopsOnContextCancel(t *testing.T) {
	f1, f2 := &fakeAgent{}, &fakeAgent{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	a := &App{
		agents: []agent.Agent{f1, f2},
		http:   &HTTPServer{srv: &http.Server{Addr: "127.0.0.1:0", Handler: mux}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return f1.started.Load() && f2.started.Load() }, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Run to return after cancel")
	}
}

func TestAppRun_WatcherReloadsDefinitions(t *testing.T) {
	dir := t.TempDir()
	for _, sub := range []string{"agents", "tasks", "crews"} {
		src, err := os.ReadFile(filepath.Join(repoRoot(t), "definitions", sub, "healthcare.yaml"))
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, sub, "healthcare.yaml"), src, 0o644))
	}

	env := testEnv(t, "http://127.0.0.1:1/v1")
	env.DefinitionsDir = dir
	env.WatchDefinitions = true
	a, err := New(env)
	require.NoError(t, err)
	a.http = &HTTPServer{srv: &http.Server{Addr: "127.0.0.1:0", Handler: http.NewServeMux()}}
	a.watcher.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	extra := "crews:\n  - name: extra_crew\n    process: sequential\n    agents: [diagnostician, treatment_advisor]\n    tasks: [diagnose, treatment]\n"
	// the watcher may not be registered yet on the first writes
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "crews", "extra.yaml"), []byte(extra), 0o644)
		_, ok := a.rt.Definitions().Crews["extra_crew"]
		return ok
	}, 3*time.Second, 100*time.Millisecond)
	require.Contains(t, a.rt.Definitions().Crews, "healthcare")
}
