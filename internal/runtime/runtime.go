// Package runtime holds the state shared between the HTTP surface, the
// crew runner and the readiness probe.
package runtime

import (
	"context"
	"sync/atomic"

	"github.com/ccastromar/aos-healthcare-assistant/internal/config"
	"github.com/ccastromar/aos-healthcare-assistant/internal/llm"
)

// Pinger is implemented by backing stores checked for readiness.
type Pinger interface {
	Ping() error
}

type Runtime struct {
	defs      atomic.Pointer[config.Config]
	LLMClient llm.LLMClient
	Store     Pinger
}

func New(cfg *config.Config, client llm.LLMClient, store Pinger) *Runtime {
	rt := &Runtime{LLMClient: client, Store: store}
	if cfg != nil {
		rt.defs.Store(cfg)
	}
	return rt
}

// Definitions returns the current agent/task/crew definitions. They are
// swapped atomically on hot reload.
func (r *Runtime) Definitions() *config.Config {
	return r.defs.Load()
}

func (r *Runtime) SetDefinitions(cfg *config.Config) {
	r.defs.Store(cfg)
}

func (r *Runtime) SpecsLoaded() bool {
	cfg := r.defs.Load()
	return cfg != nil && len(cfg.Crews) > 0
}

// PingLLM checks the configured provider.
func (r *Runtime) PingLLM(ctx context.Context) error {
	return r.LLMClient.Ping(ctx)
}
