package admin

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nexusgate/gateway/internal/httpserver"
	"github.com/nexusgate/gateway/pkg/resolver"
)

func (h *Handler) listMappings(w http.ResponseWriter, r *http.Request) {
	alias := r.URL.Query().Get("alias")
	var providerID uuid.UUID
	if p := r.URL.Query().Get("provider_id"); p != "" {
		id, err := uuid.Parse(p)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid provider_id")
			return
		}
		providerID = id
	}

	mappings, err := h.mappings.List(r.Context(), alias, providerID)
	if err != nil {
		respondNotFoundOrError(w, h.logger, err, "listing model mappings")
		return
	}
	httpserver.Respond(w, http.StatusOK, mappings)
}

func (h *Handler) listAliases(w http.ResponseWriter, r *http.Request) {
	aliases, err := h.mappings.ListAliases(r.Context())
	if err != nil {
		respondNotFoundOrError(w, h.logger, err, "listing model aliases")
		return
	}
	httpserver.Respond(w, http.StatusOK, aliases)
}

func (h *Handler) getMapping(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "mappingID")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid mapping id")
		return
	}
	mapping, err := h.mappings.Get(r.Context(), id)
	if err != nil {
		respondNotFoundOrError(w, h.logger, err, "getting model mapping")
		return
	}
	httpserver.Respond(w, http.StatusOK, mapping)
}

type createMappingRequest struct {
	AliasName         string         `json:"alias_name" validate:"required"`
	ProviderID        uuid.UUID      `json:"provider_id" validate:"required"`
	ProviderModelName string         `json:"provider_model_name" validate:"required"`
	OrderIndex        int            `json:"order_index"`
	IsDefault         bool           `json:"is_default"`
	Config            map[string]any `json:"config"`
}

func (h *Handler) createMapping(w http.ResponseWriter, r *http.Request) {
	var req createMappingRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	mapping, err := h.mappings.Create(r.Context(), resolver.CreateParams{
		AliasName:         req.AliasName,
		ProviderID:        req.ProviderID,
		ProviderModelName: req.ProviderModelName,
		OrderIndex:        req.OrderIndex,
		IsDefault:         req.IsDefault,
		Config:            req.Config,
	})
	if err != nil {
		h.logger.Error("creating model mapping", "error", err)
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusCreated, mapping)
}

type updateMappingRequest struct {
	ProviderModelName *string        `json:"provider_model_name"`
	OrderIndex        *int           `json:"order_index"`
	IsDefault         *bool          `json:"is_default"`
	Config            map[string]any `json:"config"`
}

func (h *Handler) updateMapping(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "mappingID")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid mapping id")
		return
	}
	var req updateMappingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mapping, err := h.mappings.Update(r.Context(), id, resolver.UpdateParams{
		ProviderModelName: req.ProviderModelName,
		OrderIndex:        req.OrderIndex,
		IsDefault:         req.IsDefault,
		Config:            req.Config,
	})
	if err != nil {
		h.logger.Error("updating model mapping", "error", err, "mapping_id", id)
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusOK, mapping)
}

func (h *Handler) deleteMapping(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "mappingID")
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid mapping id")
		return
	}
	if err := h.mappings.Delete(r.Context(), id); err != nil {
		respondNotFoundOrError(w, h.logger, err, "deleting model mapping")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
