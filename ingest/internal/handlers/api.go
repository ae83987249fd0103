package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/netsentry/netsentry/common/httputil"
	"github.com/netsentry/netsentry/common/logging"
	"github.com/netsentry/netsentry/common/models"
	"github.com/netsentry/netsentry/ingest/internal/service"
	"github.com/netsentry/netsentry/ingest/internal/validator"
)

// HandleSubmitAlert records an alert posted by an agent or script.
func (h *Handler) HandleSubmitAlert(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadBody(w, r)
	if err != nil {
		httputil.WriteFieldError(w, "invalid payload", []string{"body"})
		return
	}
	alert, err := validator.ParseAlert(body, h.now())
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			httputil.WriteFieldError(w, "invalid payload", verr.Fields)
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	h.service.SubmitAlert(r.Context(), alert)
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"status": "accepted",
		"alert":  alert,
	})
}

func (h *Handler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.LatestAlerts(r.Context())
	if err != nil {
		h.storageError(w, r, "list alerts", err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	httputil.WriteJSON(w, http.StatusOK, alerts)
}

func (h *Handler) HandleTriageAlert(w http.ResponseWriter, r *http.Request) {
	var t models.AlertTriage
	if err := httputil.DecodeJSON(w, r, &t); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	alert, err := h.service.TriageAlert(r.Context(), r.PathValue("id"), t)
	if err != nil {
		h.storageError(w, r, "triage alert", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, alert)
}

func (h *Handler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Audit(r.Context())
	if err != nil {
		h.storageError(w, r, "list audit", err)
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) HandleListSignatures(w http.ResponseWriter, r *http.Request) {
	sigs := h.service.Signatures(r.Context())
	if sigs == nil {
		sigs = []models.Signature{}
	}
	httputil.WriteJSON(w, http.StatusOK, sigs)
}

func (h *Handler) HandleActivateSignature(w http.ResponseWriter, r *http.Request) {
	h.setSignatureActive(w, r, true)
}

func (h *Handler) HandleDeactivateSignature(w http.ResponseWriter, r *http.Request) {
	h.setSignatureActive(w, r, false)
}

func (h *Handler) setSignatureActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid signature id")
		return
	}
	sig, err := h.service.SetSignatureActive(r.Context(), id, active)
	if err != nil {
		h.storageError(w, r, "set signature active", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sig)
}

func (h *Handler) storageError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, service.ErrNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	h.logger.ErrorContext(r.Context(), op+" failed", logging.Error(err))
	httputil.WriteError(w, http.StatusServiceUnavailable, "storage unavailable")
}
