package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netsentry/netsentry/common/middleware"
	"github.com/netsentry/netsentry/ingest/internal/handlers"
	"github.com/netsentry/netsentry/ingest/internal/ratelimit"
)

// Options carries the cross-cutting pieces of the router.
type Options struct {
	// Live is the live channel handler mounted at /ws.
	Live http.Handler
	// GlobalLimiter guards every endpoint except agent intake and probes.
	GlobalLimiter ratelimit.RateLimiter
	// TrustedProxies may set the client address through forwarding
	// headers. Nil keys the global limiter on the socket peer.
	TrustedProxies *middleware.TrustedProxies
	CORS           middleware.CORSConfig
	Logger         *slog.Logger
}

// NewRouter constructs a ServeMux with the gate routes registered.
func NewRouter(h *handlers.Handler, opts Options) http.Handler {
	if opts.GlobalLimiter == nil {
		opts.GlobalLimiter = &ratelimit.NoOpRateLimiter{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	global := ratelimit.Middleware(opts.GlobalLimiter, "global", ratelimit.ByTrustedClientIP(opts.TrustedProxies))
	limited := func(fn http.HandlerFunc) http.Handler { return global(fn) }

	mux := http.NewServeMux()

	// Agent intake has its own per-agent limiter.
	mux.HandleFunc("POST /agent/event", h.HandleAgentEvent)
	mux.HandleFunc("POST /api/agent/event", h.HandleAgentEvent)
	mux.Handle("GET /api/agent/config", limited(h.HandleAgentConfig))

	mux.Handle("POST /alerts", limited(h.HandleSubmitAlert))
	mux.Handle("POST /api/alerts", limited(h.HandleSubmitAlert))
	mux.Handle("GET /api/alerts", limited(h.HandleListAlerts))
	mux.Handle("PATCH /api/alerts/{id}", limited(h.HandleTriageAlert))
	mux.Handle("GET /api/audit", limited(h.HandleListAudit))
	mux.Handle("GET /api/signatures", limited(h.HandleListSignatures))
	mux.Handle("POST /api/signatures/{id}/activate", limited(h.HandleActivateSignature))
	mux.Handle("POST /api/signatures/{id}/deactivate", limited(h.HandleDeactivateSignature))

	if opts.Live != nil {
		mux.Handle("GET /ws", global(opts.Live))
	}

	// Health endpoints
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = middleware.CORS(opts.CORS)(handler)
	handler = middleware.AccessLog(opts.Logger)(handler)
	return middleware.RequestID(handler)
}
