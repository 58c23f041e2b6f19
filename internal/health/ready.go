package health

import (
	"context"
	"net/http"
	"time"

	"github.com/ccastromar/aos-healthcare-assistant/internal/logx"
	"github.com/ccastromar/aos-healthcare-assistant/internal/runtime"
)

// pingTimeout bounds the provider check so probes stay fast.
const pingTimeout = 3 * time.Second

func ReadyHandler(rt *runtime.Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rt.SpecsLoaded() {
			http.Error(w, "definitions not loaded", http.StatusServiceUnavailable)
			return
		}

		if rt.Store != nil {
			if err := rt.Store.Ping(); err != nil {
				logx.Warn("Health", "store ping failed: %v", err)
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := rt.PingLLM(ctx); err != nil {
			logx.Warn("Health", "llm ping failed: %v", err)
			http.Error(w, "llm unreachable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
