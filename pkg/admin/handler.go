// Package admin provides the /admin/* CRUD surface for providers,
// credentials, and model mappings, plus operational diagnostics endpoints
// (circuit breaker health/reset, rate limit usage) — all behind session or
// API-key auth (mounted on httpserver.Server.AdminRouter), with no role check.
package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nexusgate/gateway/internal/auth"
	"github.com/nexusgate/gateway/internal/httpserver"
	"github.com/nexusgate/gateway/pkg/breaker"
	"github.com/nexusgate/gateway/pkg/credential"
	"github.com/nexusgate/gateway/pkg/provider"
	"github.com/nexusgate/gateway/pkg/ratelimiter"
	"github.com/nexusgate/gateway/pkg/resolver"
)

// Handler provides the admin HTTP handlers.
type Handler struct {
	logger      *slog.Logger
	providers   *provider.Service
	credentials *credential.Service
	mappings    *resolver.Service
	breaker     *breaker.Breaker
	limiter     *ratelimiter.Limiter
	limits      ratelimiter.Limits
}

// New creates an admin Handler.
func New(logger *slog.Logger, providers *provider.Service, credentials *credential.Service, mappings *resolver.Service, br *breaker.Breaker, limiter *ratelimiter.Limiter, limits ratelimiter.Limits) *Handler {
	return &Handler{
		logger:      logger,
		providers:   providers,
		credentials: credentials,
		mappings:    mappings,
		breaker:     br,
		limiter:     limiter,
		limits:      limits,
	}
}

// Routes returns a chi.Router with every admin route mounted. Callers
// apply session/API-key auth middleware around this router (see
// internal/httpserver.Server.AdminRouter); no RBAC middleware is applied.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/providers", func(r chi.Router) {
		r.Get("/", h.listProviders)
		r.Post("/", h.createProvider)
		r.Route("/{providerID}", func(r chi.Router) {
			r.Get("/", h.getProvider)
			r.Put("/", h.updateProvider)
			r.Delete("/", h.deleteProvider)
			r.Get("/health", h.providerHealth)
			r.Post("/circuit-breaker/reset", h.resetCircuitBreaker)
			r.Get("/credentials", h.listCredentials)
			r.Post("/credentials", h.createCredential)
		})
	})

	r.Route("/credentials/{credentialID}", func(r chi.Router) {
		r.Patch("/status", h.setCredentialStatus)
		r.Delete("/", h.deleteCredential)
	})

	r.Route("/model-mappings", func(r chi.Router) {
		r.Get("/", h.listMappings)
		r.Post("/", h.createMapping)
		r.Get("/aliases", h.listAliases)
		r.Route("/{mappingID}", func(r chi.Router) {
			r.Get("/", h.getMapping)
			r.Put("/", h.updateMapping)
			r.Delete("/", h.deleteMapping)
		})
	})

	r.Get("/rate-limits/usage", h.rateLimitUsage)

	return r
}

func parsePathUUID(r *http.Request, param string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, param))
}

func respondNotFoundOrError(w http.ResponseWriter, logger *slog.Logger, err error, action string) {
	if errors.Is(err, pgx.ErrNoRows) {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	logger.Error(action, "error", err)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", action+" failed")
}

// actorFromContext returns the authenticated admin identity's subject for
// audit/attribution purposes, or "" if unauthenticated (unreachable in
// practice since this router sits behind auth.RequireAuth).
func actorFromContext(r *http.Request) string {
	if id := auth.FromContext(r.Context()); id != nil {
		return id.Subject
	}
	return ""
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return false
	}
	return true
}
