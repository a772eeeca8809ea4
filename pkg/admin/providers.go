package admin

import (
	"net/http"

	"github.com/nexusgate/gateway/internal/httpserver"
	"github.com/nexusgate/gateway/pkg/provider"
)

type createProviderRequest struct {
	Name           string         `json:"name" validate:"required"`
	Kind           string         `json:"kind" validate:"required"`
	BaseURL        string         `json:"base_url" validate:"required"`
	Config         map[string]any `json:"config"`
	TimeoutSeconds int            `json:"timeout_seconds"`
	MaxRetries     int            `json:"max_retries"`
}

type updateProviderRequest struct {
	BaseURL        string         `json:"base_url" validate:"required"`
	Config         map[string]any `json:"config"`
	Status         string         `json:"status" validate:"required"`
	TimeoutSeconds int            `json:"timeout_seconds"`
	MaxRetries     int            `json:"max_retries"`
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	recs, err := h.providers.List(r.Context())
	if err != nil {
		respondNotFoundOrError(w, h.logger, err, "listing providers")
		return
	}
	httpserver.Respond(w, http.StatusOK, recs)
}

func (h *Handler) getProvider(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "providerID")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid provider id")
		return
	}
	rec, err := h.providers.Get(r.Context(), id)
	if err != nil {
		respondNotFoundOrError(w, h.logger, err, "getting provider")
		return
	}
	httpserver.Respond(w, http.StatusOK, rec)
}

func (h *Handler) createProvider(w http.ResponseWriter, r *http.Request) {
	var req createProviderRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	rec, err := h.providers.Create(r.Context(), provider.CreateParams{
		Name:           req.Name,
		Kind:           provider.Kind(req.Kind),
		BaseURL:        req.BaseURL,
		Config:         req.Config,
		TimeoutSeconds: req.TimeoutSeconds,
		MaxRetries:     req.MaxRetries,
	})
	if err != nil {
		h.logger.Error("creating provider", "error", err)
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusCreated, rec)
}

func (h *Handler) updateProvider(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "providerID")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid provider id")
		return
	}
	var req updateProviderRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	rec, err := h.providers.Update(r.Context(), id, provider.UpdateParams{
		BaseURL:        req.BaseURL,
		Config:         req.Config,
		Status:         provider.Status(req.Status),
		TimeoutSeconds: req.TimeoutSeconds,
		MaxRetries:     req.MaxRetries,
	})
	if err != nil {
		h.logger.Error("updating provider", "error", err)
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusOK, rec)
}

func (h *Handler) deleteProvider(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "providerID")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid provider id")
		return
	}
	if err := h.providers.Delete(r.Context(), id); err != nil {
		respondNotFoundOrError(w, h.logger, err, "deleting provider")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// providerHealthResponse supplements the distilled spec with the
// reference proxy's fallback.get_provider_health shape: circuit breaker
// state plus eligible credential counts, for an operator dashboard.
type providerHealthResponse struct {
	ProviderID        string `json:"provider_id"`
	Status            string `json:"status"`
	CircuitState      string `json:"circuit_breaker_state"`
	CredentialCount   int    `json:"credential_count"`
	ActiveCredentials int    `json:"active_credentials"`
}

func (h *Handler) providerHealth(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "providerID")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid provider id")
		return
	}

	rec, err := h.providers.Get(r.Context(), id)
	if err != nil {
		respondNotFoundOrError(w, h.logger, err, "getting provider")
		return
	}

	state, err := h.breaker.State(r.Context(), id)
	if err != nil {
		h.logger.Error("checking circuit breaker state", "error", err, "provider_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "checking circuit breaker state failed")
		return
	}

	creds, err := h.credentials.ListByProvider(r.Context(), id)
	if err != nil {
		h.logger.Error("listing credentials", "error", err, "provider_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "listing credentials failed")
		return
	}

	active := 0
	for _, c := range creds {
		if c.Status == "active" {
			active++
		}
	}

	httpserver.Respond(w, http.StatusOK, providerHealthResponse{
		ProviderID:        rec.ID.String(),
		Status:            string(rec.Status),
		CircuitState:      string(state),
		CredentialCount:   len(creds),
		ActiveCredentials: active,
	})
}

func (h *Handler) resetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "providerID")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid provider id")
		return
	}
	if err := h.breaker.Reset(r.Context(), id); err != nil {
		h.logger.Error("resetting circuit breaker", "error", err, "provider_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "resetting circuit breaker failed")
		return
	}
	h.logger.Info("circuit breaker reset by admin", "provider_id", id, "actor", actorFromContext(r))
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "reset"})
}
