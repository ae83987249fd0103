// Package handlers implements the HTTP surface of the admission gate.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/netsentry/netsentry/common/httputil"
	"github.com/netsentry/netsentry/common/middleware"
	"github.com/netsentry/netsentry/common/models"
	"github.com/netsentry/netsentry/ingest/internal/ratelimit"
	"github.com/netsentry/netsentry/ingest/internal/service"
)

// IngestService is the pipeline the handlers drive.
type IngestService interface {
	AcceptEvent(ctx context.Context, agentID string, e *models.Event)
	SubmitAlert(ctx context.Context, a *models.Alert)
	LatestAlerts(ctx context.Context) ([]models.Alert, error)
	TriageAlert(ctx context.Context, id string, t models.AlertTriage) (*models.Alert, error)
	Audit(ctx context.Context) ([]models.AuditEntry, error)
	Signatures(ctx context.Context) []models.Signature
	SetSignatureActive(ctx context.Context, id int64, active bool) (*models.Signature, error)
	AgentConfig(agentID string) service.AgentConfig
	Readiness(ctx context.Context) service.Readiness
	GetStats() service.Stats
}

// AgentAuthenticator resolves the identity behind an agent request.
type AgentAuthenticator interface {
	AuthenticateAgent(r *http.Request) (string, error)
}

// EventValidator turns a request body into an event or a field error.
type EventValidator interface {
	Validate(body []byte) (*models.Event, error)
}

type Handler struct {
	service   IngestService
	auth      AgentAuthenticator
	validator EventValidator
	limiter   ratelimit.RateLimiter
	logger    *slog.Logger
	clientIP  ratelimit.KeyFunc
	now       func() time.Time
}

// NewHandler wires the gate handlers. A nil limiter disables per-agent
// admission control.
func NewHandler(svc IngestService, auth AgentAuthenticator, v EventValidator, limiter ratelimit.RateLimiter, logger *slog.Logger) *Handler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	return &Handler{
		service:   svc,
		auth:      auth,
		validator: v,
		limiter:   limiter,
		logger:    logger,
		clientIP:  middleware.ClientIP,
		now:       time.Now,
	}
}

// TrustProxies makes unauthenticated agents attributable through the
// forwarding headers of the given proxies.
func (h *Handler) TrustProxies(proxies *middleware.TrustedProxies) {
	h.clientIP = proxies.ClientIP
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ready := h.service.Readiness(r.Context())
	status := http.StatusOK
	if !ready.Ready {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, map[string]interface{}{
		"status":    ready,
		"stats":     h.service.GetStats(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
