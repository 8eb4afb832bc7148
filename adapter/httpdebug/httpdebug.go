// Package httpdebug exposes a small chi-routed HTTP surface for operating
// an engine process out-of-band from its primary RPC transport: liveness,
// Prometheus metrics, and a JSON debug snapshot of the dispatch table.
//
// This is a side door, not the RPC transport. The line-delimited JSON-RPC
// 2.0 surface the adapter package dispatches for is expected to ride a
// socket or stdio elsewhere; this mux exists so an operator (or a
// readiness probe) can poll engine health without speaking that protocol.
package httpdebug

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arbiterloop/engine/adapter"
	"github.com/arbiterloop/engine/observability"
)

// New builds a chi.Mux serving:
//
//	GET /healthz  -- always 200 once the process is up
//	GET /metrics  -- Prometheus exposition format (metrics may be nil)
//	GET /debug/info -- JSON snapshot of workflow/debug/info
//
// a is required; metrics may be nil (the /metrics route then reports 503,
// matching (*observability.Metrics)(nil).Handler()'s contract).
func New(a *adapter.Adapter, metrics *observability.Metrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", handleHealthz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/debug/info", handleDebugInfo(a))

	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func handleDebugInfo(a *adapter.Adapter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := a.Dispatch(r.Context(), "workflow/debug/info", nil)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}
}
