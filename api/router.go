package api

import (
	"log/slog"
	"net/http"

	"github.com/GoCodeAlone/nlflow/observability"
	"github.com/GoCodeAlone/nlflow/observability/tracing"
	"github.com/GoCodeAlone/nlflow/store"
)

// Config holds configuration for the API layer.
type Config struct {
	// RateLimitPerMinute caps parse requests per client IP. Zero disables
	// the limit.
	RateLimitPerMinute int
	MaxBodyBytes       int64

	// Metrics, when set, is recorded per request and served at its path.
	Metrics *observability.Metrics
	// Tracing wraps the router in span middleware.
	Tracing bool
	Logger  *slog.Logger

	// Health reports readiness details for GET /healthz. Optional.
	Health func() map[string]any
}

// Router is the HTTP entry point. Call Close to stop the rate limiter's
// background cleanup.
type Router struct {
	handler http.Handler
	mw      *Middleware
}

// NewRouter creates a Router with all routes registered.
func NewRouter(parser WorkflowParser, workflows store.WorkflowStore, cfg Config) *Router {
	mux := http.NewServeMux()
	mw := NewMiddleware(cfg.Metrics, cfg.Logger)

	wfH := NewWorkflowHandler(parser, workflows, cfg.Logger, cfg.MaxBodyBytes)
	rl := mw.RateLimit(cfg.RateLimitPerMinute)
	mux.Handle("POST /api/workflows/parse", rl(http.HandlerFunc(wfH.Parse)))
	mux.HandleFunc("GET /api/workflows", wfH.List)
	mux.HandleFunc("GET /api/workflows/{id}", wfH.Get)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if cfg.Health != nil {
			for k, v := range cfg.Health() {
				body[k] = v
			}
		}
		WriteJSON(w, http.StatusOK, body)
	})

	if cfg.Metrics != nil {
		mux.Handle("GET "+cfg.Metrics.MetricsPath(), cfg.Metrics.Handler())
	}

	var h http.Handler = mw.Instrument(mux)
	if cfg.Tracing {
		h = tracing.SpanMiddleware(h)
	}
	return &Router{handler: h, mw: mw}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.handler.ServeHTTP(w, r)
}

// Close releases background resources held by the router's middleware.
func (rt *Router) Close() {
	rt.mw.Stop()
}
