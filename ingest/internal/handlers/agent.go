package handlers

import (
	"errors"
	"net/http"

	"github.com/netsentry/netsentry/common/httputil"
	"github.com/netsentry/netsentry/common/logging"
	"github.com/netsentry/netsentry/ingest/internal/metrics"
	"github.com/netsentry/netsentry/ingest/internal/service"
)

const agentScope = "agent"

// HandleAgentEvent admits one agent event. The order is fixed: resolve the
// identity, apply the per-agent limit, then reject unauthenticated callers,
// then validate.
func (h *Handler) HandleAgentEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID, authErr := h.auth.AuthenticateAgent(r)

	key := agentID
	if authErr != nil {
		key = h.clientIP(r)
	}
	allowed, err := h.limiter.Allow(ctx, key)
	if err != nil {
		h.logger.WarnContext(ctx, "agent rate limiter unavailable, allowing request", logging.Error(err))
		allowed = true
	}
	if !allowed {
		metrics.RateLimitHits.WithLabelValues(agentScope).Inc()
		metrics.RejectedTotal.WithLabelValues("rate_limited").Inc()
		httputil.WriteError(w, http.StatusTooManyRequests, "rate limit")
		return
	}

	if authErr != nil {
		metrics.RejectedTotal.WithLabelValues("unauthenticated").Inc()
		h.logger.InfoContext(ctx, "agent authentication failed",
			logging.IP(h.clientIP(r)), logging.Error(authErr))
		httputil.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	body, err := httputil.ReadBody(w, r)
	if err != nil {
		metrics.RejectedTotal.WithLabelValues("invalid_payload").Inc()
		httputil.WriteFieldError(w, "invalid payload", []string{"body"})
		return
	}

	event, err := h.validator.Validate(body)
	if err != nil {
		metrics.RejectedTotal.WithLabelValues("invalid_payload").Inc()
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			httputil.WriteFieldError(w, "invalid payload", verr.Fields)
			return
		}
		httputil.WriteFieldError(w, "invalid payload", []string{"body"})
		return
	}

	h.service.AcceptEvent(ctx, agentID, event)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "accepted",
		"agent":  agentID,
	})
}

// HandleAgentConfig serves the sampling settings an agent should run with.
func (h *Handler) HandleAgentConfig(w http.ResponseWriter, r *http.Request) {
	agentID, err := h.auth.AuthenticateAgent(r)
	if err != nil {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.AgentConfig(agentID))
}
