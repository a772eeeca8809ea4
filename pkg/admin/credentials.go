package admin

import (
	"net/http"

	"github.com/nexusgate/gateway/internal/httpserver"
	"github.com/nexusgate/gateway/pkg/credential"
)

// credentialView omits KeyEncrypted entirely and substitutes a masked
// rendering, so a raw secret never leaves the admin API in a list/get call.
type credentialView struct {
	ID                  string `json:"id"`
	ProviderID          string `json:"provider_id"`
	KeyID               string `json:"key_id"`
	MaskedSecret        string `json:"masked_secret"`
	Priority            int    `json:"priority"`
	Status              string `json:"status"`
	RateLimitRPM        int    `json:"rate_limit_rpm"`
	RateLimitTPM        int    `json:"rate_limit_tpm"`
	DailyQuota          int    `json:"daily_quota"`
	MonthlyQuota        int    `json:"monthly_quota"`
	CurrentDailyUsage   int    `json:"current_daily_usage"`
	CurrentMonthlyUsage int    `json:"current_monthly_usage"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

func (h *Handler) credentialView(r credential.Record) credentialView {
	masked, err := h.credentials.MaskedSecret(r)
	if err != nil {
		masked = "****"
	}
	return credentialView{
		ID:                  r.ID.String(),
		ProviderID:          r.ProviderID.String(),
		KeyID:               r.KeyID,
		MaskedSecret:        masked,
		Priority:            r.Priority,
		Status:              string(r.Status),
		RateLimitRPM:        r.RateLimitRPM,
		RateLimitTPM:        r.RateLimitTPM,
		DailyQuota:          r.DailyQuota,
		MonthlyQuota:        r.MonthlyQuota,
		CurrentDailyUsage:   r.CurrentDailyUsage,
		CurrentMonthlyUsage: r.CurrentMonthlyUsage,
		ConsecutiveFailures: r.ConsecutiveFailures,
	}
}

func (h *Handler) listCredentials(w http.ResponseWriter, r *http.Request) {
	providerID, err := parsePathUUID(r, "providerID")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid provider id")
		return
	}
	recs, err := h.credentials.ListByProvider(r.Context(), providerID)
	if err != nil {
		respondNotFoundOrError(w, h.logger, err, "listing credentials")
		return
	}
	views := make([]credentialView, len(recs))
	for i, rec := range recs {
		views[i] = h.credentialView(rec)
	}
	httpserver.Respond(w, http.StatusOK, views)
}

type createCredentialRequest struct {
	KeyID        string `json:"key_id" validate:"required"`
	RawKey       string `json:"raw_key" validate:"required"`
	Priority     int    `json:"priority"`
	RateLimitRPM int    `json:"rate_limit_rpm"`
	RateLimitTPM int    `json:"rate_limit_tpm"`
	DailyQuota   int    `json:"daily_quota"`
	MonthlyQuota int    `json:"monthly_quota"`
}

func (h *Handler) createCredential(w http.ResponseWriter, r *http.Request) {
	providerID, err := parsePathUUID(r, "providerID")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid provider id")
		return
	}
	var req createCredentialRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	rec, err := h.credentials.Create(r.Context(), credential.CreateRequest{
		ProviderID:   providerID,
		KeyID:        req.KeyID,
		RawKey:       req.RawKey,
		Priority:     req.Priority,
		RateLimitRPM: req.RateLimitRPM,
		RateLimitTPM: req.RateLimitTPM,
		DailyQuota:   req.DailyQuota,
		MonthlyQuota: req.MonthlyQuota,
	})
	if err != nil {
		h.logger.Error("creating credential", "error", err)
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusCreated, h.credentialView(rec))
}

type setCredentialStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) setCredentialStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "credentialID")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid credential id")
		return
	}
	var req setCredentialStatusRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	rec, err := h.credentials.SetStatus(r.Context(), id, credential.Status(req.Status))
	if err != nil {
		h.logger.Error("setting credential status", "error", err, "credential_id", id)
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusOK, h.credentialView(rec))
}

func (h *Handler) deleteCredential(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "credentialID")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid credential id")
		return
	}
	if err := h.credentials.Delete(r.Context(), id); err != nil {
		respondNotFoundOrError(w, h.logger, err, "deleting credential")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
