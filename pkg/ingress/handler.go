package ingress

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nexusgate/gateway/internal/audit"
	"github.com/nexusgate/gateway/internal/httpserver"
	"github.com/nexusgate/gateway/pkg/credential"
	"github.com/nexusgate/gateway/pkg/executor"
	"github.com/nexusgate/gateway/pkg/provider"
	"github.com/nexusgate/gateway/pkg/ratelimiter"
	"github.com/nexusgate/gateway/pkg/resolver"
)

// Handler provides the /v1/* OpenAI-compatible HTTP handlers.
type Handler struct {
	logger      *slog.Logger
	audit       *audit.Writer
	resolver    *resolver.Service
	providers   *provider.Service
	credentials *credential.Service
	engine      *executor.Engine
	limiter     *ratelimiter.Limiter
	limits      ratelimiter.Limits
}

// New creates an ingress Handler.
func New(logger *slog.Logger, auditWriter *audit.Writer, res *resolver.Service, providers *provider.Service, creds *credential.Service, engine *executor.Engine, limiter *ratelimiter.Limiter, limits ratelimiter.Limits) *Handler {
	return &Handler{
		logger:      logger,
		audit:       auditWriter,
		resolver:    res,
		providers:   providers,
		credentials: creds,
		engine:      engine,
		limiter:     limiter,
		limits:      limits,
	}
}

// Routes returns a chi.Router with the OpenAI-compatible surface mounted.
// It carries no auth middleware — the bearer token is opaque to the proxy.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/chat/completions", h.handleChatCompletions)
	r.Post("/completions", h.handleCompletions)
	r.Post("/embeddings", h.handleEmbeddings)
	r.Get("/models", h.handleModels)
	return r
}

func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	requestID := httpserver.RequestIDFromContext(r.Context())
	w.Header().Set("X-Proxy-Request-ID", requestID)

	var req ChatCompletionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	token, _ := bearerToken(r)
	if !h.admitRateLimits(w, r, requestID, token) {
		return
	}

	start := time.Now()
	var result executor.Result
	var err error
	if req.Stream {
		result, err = h.engine.ExecuteStream(r.Context(), req.Model, req.toProviderRequest(), executor.OpChat, provider.AdapterFor)
	} else {
		result, err = h.engine.Execute(r.Context(), req.Model, req.toProviderRequest(), executor.OpChat, provider.AdapterFor)
	}
	if err != nil {
		h.logger.Error("executing chat completion", "error", err, "request_id", requestID)
		respondError(w, requestID, http.StatusInternalServerError, "unknown_error", "internal error")
		return
	}

	h.auditAttempt(r, requestID, req.Model, result, start)

	if !result.Success {
		errType := lastErrorType(result.Attempts)
		respondError(w, requestID, statusForErrorType(errType), errType, fallbackFailureMessage(result))
		return
	}

	if req.Stream {
		streamChatCompletion(w, h.logger, requestID, req.Model, result.Stream, result.StreamErrs)
		return
	}

	httpserver.Respond(w, http.StatusOK, chatCompletionResponse(req.Model, result.Response, false))
}

func (h *Handler) handleCompletions(w http.ResponseWriter, r *http.Request) {
	requestID := httpserver.RequestIDFromContext(r.Context())
	w.Header().Set("X-Proxy-Request-ID", requestID)

	var req CompletionRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	token, _ := bearerToken(r)
	if !h.admitRateLimits(w, r, requestID, token) {
		return
	}

	start := time.Now()
	var result executor.Result
	var err error
	if req.Stream {
		result, err = h.engine.ExecuteStream(r.Context(), req.Model, req.toProviderRequest(), executor.OpCompletion, provider.AdapterFor)
	} else {
		result, err = h.engine.Execute(r.Context(), req.Model, req.toProviderRequest(), executor.OpCompletion, provider.AdapterFor)
	}
	if err != nil {
		h.logger.Error("executing completion", "error", err, "request_id", requestID)
		respondError(w, requestID, http.StatusInternalServerError, "unknown_error", "internal error")
		return
	}

	h.auditAttempt(r, requestID, req.Model, result, start)

	if !result.Success {
		errType := lastErrorType(result.Attempts)
		respondError(w, requestID, statusForErrorType(errType), errType, fallbackFailureMessage(result))
		return
	}

	if req.Stream {
		streamChatCompletion(w, h.logger, requestID, req.Model, result.Stream, result.StreamErrs)
		return
	}

	httpserver.Respond(w, http.StatusOK, chatCompletionResponse(req.Model, result.Response, true))
}

// handleEmbeddings is a single-attempt operation against the alias's
// default mapping only — it does not walk the fallback chain, matching the
// reference proxy's embeddings endpoint.
func (h *Handler) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	requestID := httpserver.RequestIDFromContext(r.Context())
	w.Header().Set("X-Proxy-Request-ID", requestID)

	var req EmbeddingRequestBody
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	token, _ := bearerToken(r)
	if !h.admitRateLimits(w, r, requestID, token) {
		return
	}

	mapping, ok, err := h.resolver.Default(r.Context(), req.Model)
	if err != nil {
		h.logger.Error("resolving embedding model", "error", err, "request_id", requestID)
		respondError(w, requestID, http.StatusInternalServerError, "unknown_error", "internal error")
		return
	}
	if !ok {
		respondError(w, requestID, http.StatusNotFound, "model_not_found", "model '"+req.Model+"' not found")
		return
	}

	rec, err := h.providers.Get(r.Context(), mapping.ProviderID)
	if err != nil {
		h.logger.Error("loading provider", "error", err, "request_id", requestID)
		respondError(w, requestID, http.StatusInternalServerError, "unknown_error", "internal error")
		return
	}

	cred, err := h.credentials.Selector().Select(r.Context(), rec.ID, credential.StrategyPriority)
	if err != nil {
		h.logger.Error("selecting credential", "error", err, "request_id", requestID)
		respondError(w, requestID, http.StatusInternalServerError, "unknown_error", "internal error")
		return
	}
	if cred == nil {
		respondError(w, requestID, http.StatusServiceUnavailable, "no_available_keys", "no available API keys for this model")
		return
	}

	apiKey, err := h.credentials.Decrypt(*cred)
	if err != nil {
		h.logger.Error("decrypting credential", "error", err, "request_id", requestID)
		respondError(w, requestID, http.StatusInternalServerError, "unknown_error", "internal error")
		return
	}
	adapter, err := provider.AdapterFor(rec, apiKey)
	if err != nil {
		h.logger.Error("building adapter", "error", err, "request_id", requestID)
		respondError(w, requestID, http.StatusInternalServerError, "unknown_error", "internal error")
		return
	}

	resp, err := adapter.Embedding(r.Context(), provider.EmbeddingRequest{
		Input: req.Input, Model: mapping.ProviderModelName, User: req.User, EncodingFormat: req.EncodingFormat,
	})
	if err != nil {
		h.credentials.Selector().RecordUsage(r.Context(), cred.ID, 0, false)
		h.logger.Warn("embedding request failed", "error", err, "request_id", requestID)
		respondError(w, requestID, http.StatusBadGateway, "server_error", err.Error())
		return
	}
	h.credentials.Selector().RecordUsage(r.Context(), cred.ID, resp.Usage.TotalTokens, true)

	data := make([]EmbeddingDatum, len(resp.Embeddings))
	for i, vec := range resp.Embeddings {
		data[i] = EmbeddingDatum{Index: i, Object: "embedding", Embedding: vec}
	}

	httpserver.Respond(w, http.StatusOK, EmbeddingResponseBody{
		Object: "list",
		Data:   data,
		Model:  resp.Model,
		Usage: Usage{
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	})
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	aliases, err := h.resolver.ListAliases(r.Context())
	if err != nil {
		h.logger.Error("listing model aliases", "error", err)
		respondError(w, httpserver.RequestIDFromContext(r.Context()), http.StatusInternalServerError, "unknown_error", "internal error")
		return
	}

	models := make([]provider.ModelInfo, len(aliases))
	for i, alias := range aliases {
		models[i] = provider.ModelInfo{ID: alias, Object: "model", OwnedBy: "proxy"}
	}

	httpserver.Respond(w, http.StatusOK, ModelListResponse{Object: "list", Data: models})
}

// admitRateLimits runs the composite rate-limit check keyed on a hash of
// the opaque client bearer token and the client IP. It writes a 429
// response and returns false if any dimension rejects.
func (h *Handler) admitRateLimits(w http.ResponseWriter, r *http.Request, requestID, clientToken string) bool {
	res, err := h.limiter.CheckRequest(r.Context(), h.limits, clientIdentityUUID(clientToken), 0, clientIP(r))
	if err != nil {
		h.logger.Error("checking rate limits", "error", err, "request_id", requestID)
		respondError(w, requestID, http.StatusInternalServerError, "unknown_error", "internal error")
		return false
	}
	if !res.Allowed {
		if res.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(res.RetryAfter.Seconds()))))
		}
		respondError(w, requestID, http.StatusTooManyRequests, "rate_limit", "rate limit exceeded ("+res.Check+")")
		return false
	}
	return true
}

func (h *Handler) auditAttempt(r *http.Request, requestID, modelAlias string, result executor.Result, start time.Time) {
	if h.audit == nil {
		return
	}

	chain := make([]audit.Attempt, len(result.Attempts))
	for i, a := range result.Attempts {
		chain[i] = audit.Attempt{
			ProviderID:   a.ProviderID.String(),
			CredentialID: a.CredentialID.String(),
			StatusCode:   a.StatusCode,
			ErrorType:    a.ErrorType,
			LatencyMS:    a.LatencyMS,
		}
	}

	entry := audit.Entry{
		RequestID:     parseUUID(requestID),
		ModelAlias:    modelAlias,
		ProviderID:    result.FinalProviderID.String(),
		CredentialID:  result.FinalCredential.String(),
		LatencyMS:     time.Since(start).Milliseconds(),
		FallbackChain: chain,
		FallbackCount: len(chain),
		CreatedAt:     time.Now(),
	}
	if result.Success {
		entry.StatusCode = http.StatusOK
		if result.Response != nil {
			entry.InputTokens = result.Response.Usage.PromptTokens
			entry.OutputTokens = result.Response.Usage.CompletionTokens
			entry.TotalTokens = result.Response.Usage.TotalTokens
		}
	} else {
		errType := lastErrorType(result.Attempts)
		entry.StatusCode = statusForErrorType(errType)
		entry.ErrorType = errType
	}

	h.audit.LogFromRequest(r, entry)
}

func fallbackFailureMessage(result executor.Result) string {
	if len(result.Attempts) == 0 {
		return "no provider mapping configured for this model"
	}
	return result.Attempts[len(result.Attempts)-1].ErrorMessage
}

// chatCompletionResponse adapts the executor's flat ChatResponse into the
// OpenAI choices-array shape, as a text completion choice when legacy is
// true or a message choice otherwise.
func chatCompletionResponse(model string, resp *provider.ChatResponse, legacy bool) ChatCompletionResponse {
	choice := Choice{Index: 0, FinishReason: resp.FinishReason}
	if legacy {
		choice.Text = resp.Content
	} else {
		choice.Message = &provider.Message{Role: "assistant", Content: resp.Content}
	}

	modelName := resp.Model
	if modelName == "" {
		modelName = model
	}

	object := "chat.completion"
	if legacy {
		object = "text_completion"
	}

	return ChatCompletionResponse{
		ID:      resp.ResponseID,
		Object:  object,
		Created: resp.Created,
		Model:   modelName,
		Choices: []Choice{choice},
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, prefix)), true
}

// clientIdentityUUID derives a stable identifier for the credential rate
// limit dimension from the opaque client token. The token itself is never
// persisted or logged; only a deterministic hash of it is used as a Redis
// key component.
func clientIdentityUUID(token string) uuid.UUID {
	if token == "" {
		return uuid.Nil
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(token))
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseUUID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.New()
	}
	return id
}
