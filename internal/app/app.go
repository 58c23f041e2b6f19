package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ccastromar/aos-healthcare-assistant/internal/agent"
	"github.com/ccastromar/aos-healthcare-assistant/internal/bus"
	"github.com/ccastromar/aos-healthcare-assistant/internal/config"
	"github.com/ccastromar/aos-healthcare-assistant/internal/llm"
	"github.com/ccastromar/aos-healthcare-assistant/internal/logx"
	"github.com/ccastromar/aos-healthcare-assistant/internal/runtime"
	"github.com/ccastromar/aos-healthcare-assistant/internal/store"
	"github.com/ccastromar/aos-healthcare-assistant/internal/tools"
	"github.com/ccastromar/aos-healthcare-assistant/internal/ui"
)

const Version = "0.3.0"

type App struct {
	env     *config.EnvVars
	rt      *runtime.Runtime
	bus     *bus.Bus
	ui      *ui.UIStore
	db      *store.DB
	runner  *agent.CrewRunner
	agents  []agent.Agent
	http    *HTTPServer
	watcher *config.Watcher
}

// Components are the pieces shared by the server and the one-shot CLI.
type Components struct {
	Defs   *config.Config
	LLM    llm.LLMClient
	Tools  *tools.Registry
	DB     *store.DB
	Bus    *bus.Bus
	UI     *ui.UIStore
	RT     *runtime.Runtime
	Runner *agent.CrewRunner
}

// Build loads definitions, opens the store and wires the crew runner.
func Build(ctx context.Context, env *config.EnvVars) (*Components, error) {
	defs, err := config.LoadFromDir(env.DefinitionsDir)
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}
	if _, ok := defs.Crews[env.DefaultCrew]; !ok {
		return nil, fmt.Errorf("default crew %q not defined", env.DefaultCrew)
	}

	client, err := llm.New(ctx, llm.Settings{
		Provider: env.LLMProvider,
		BaseURL:  env.ProviderBaseURL(),
		APIKey:   env.ProviderAPIKey(),
		Model:    env.ProviderModel(),
		Timeout:  env.LLMTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	db, err := store.Open(env.DBPath)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	reg := tools.NewRegistry(
		tools.NewSearchTool(env.SerperURL, env.SerperApiKey),
		tools.NewScrapeTool(),
	)
	if env.SerperApiKey == "" {
		logx.Warn("App", "SERPER_API_KEY not set, %s is disabled", tools.SearchToolName)
	}

	uiStore := ui.NewUIStore()
	messageBus := bus.New()
	rt := runtime.New(defs, client, db)
	runner := agent.NewCrewRunner(messageBus, rt, reg, db, uiStore, agent.RunnerOptions{
		DefaultCrew: env.DefaultCrew,
		Timeout:     env.ConsultTimeout,
		Temperature: env.LLMTemperature,
		MaxTokens:   env.LLMMaxTokens,
		Workers:     env.BusWorkers,
		Buffer:      env.BusBuffer,
		Retention:   env.Retention,
	})
	messageBus.Subscribe(agent.RunnerTarget, runner.Inbox())

	return &Components{
		Defs:   defs,
		LLM:    client,
		Tools:  reg,
		DB:     db,
		Bus:    messageBus,
		UI:     uiStore,
		RT:     rt,
		Runner: runner,
	}, nil
}

func New(env *config.EnvVars) (*App, error) {
	c, err := Build(context.Background(), env)
	if err != nil {
		return nil, err
	}

	apiAgent := agent.NewAPIAgent(c.Runner, c.DB, c.RT, agent.APIOptions{
		APIKey:      env.APIKey,
		DefaultCrew: env.DefaultCrew,
		RateLimit:   env.RateLimit,
		RateWindow:  env.RateWindow,
	})

	a := &App{
		env:    env,
		rt:     c.RT,
		bus:    c.Bus,
		ui:     c.UI,
		db:     c.DB,
		runner: c.Runner,
		agents: []agent.Agent{c.Runner},
		http:   NewHTTPServer(env, apiAgent, c.UI, c.RT),
	}
	if env.WatchDefinitions {
		a.watcher = config.NewWatcher(env.DefinitionsDir, c.RT.SetDefinitions)
	}
	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, ag := range a.agents {
		ag := ag
		g.Go(func() error {
			return ag.Start(gctx)
		})
	}

	if a.watcher != nil {
		g.Go(func() error {
			if err := a.watcher.Run(gctx); err != nil {
				// hot reload is optional; the server keeps running without it
				logx.Warn("App", "definitions watcher stopped: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.http.Start(gctx)
	})

	logx.G("App", "medcrew v%s started", Version)

	err := g.Wait()
	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil {
			logx.Warn("App", "closing store: %v", cerr)
		}
	}
	return err
}
