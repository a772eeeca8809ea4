// Package executor orchestrates the fallback chain: resolve a model alias
// to an ordered list of provider mappings, skip providers whose circuit
// breaker is open, try up to a bounded number of credentials per provider,
// classify errors into retry-key/retry-provider/fatal, and stop at the
// first success or the first fatal error.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexusgate/gateway/internal/telemetry"
	"github.com/nexusgate/gateway/pkg/breaker"
	"github.com/nexusgate/gateway/pkg/credential"
	"github.com/nexusgate/gateway/pkg/notify"
	"github.com/nexusgate/gateway/pkg/provider"
	"github.com/nexusgate/gateway/pkg/resolver"
)

const maxKeyAttemptsPerProvider = 3

// Operation selects which upstream call shape a fallback attempt makes.
// The chain-walking algorithm is identical for both; only the adapter
// method invoked at the bottom of the loop differs.
type Operation string

const (
	OpChat       Operation = "chat_completion"
	OpCompletion Operation = "completion"
)

// Attempt records a single provider/credential try, mirroring the
// reference engine's FallbackAttempt.
type Attempt struct {
	ProviderID   uuid.UUID
	ProviderName string
	CredentialID uuid.UUID
	ErrorType    string
	ErrorMessage string
	StatusCode   int
	LatencyMS    int64
	Success      bool
}

// Result is the outcome of a fallback-chain execution.
type Result struct {
	Success          bool
	Response         *provider.ChatResponse
	Stream           <-chan provider.StreamChunk
	StreamErrs       <-chan error
	Attempts         []Attempt
	TotalLatencyMS   int64
	FinalProviderID  uuid.UUID
	FinalCredential  uuid.UUID
}

// ProviderLookup resolves a provider record by id; implemented by
// pkg/provider.Service and narrowed here so executor doesn't import the
// full Service surface.
type ProviderLookup interface {
	Get(ctx context.Context, id uuid.UUID) (provider.Record, error)
}

// Engine wires together the resolver, circuit breaker, credential
// selector, and provider adapters into the fallback execution algorithm.
type Engine struct {
	resolver      *resolver.Service
	providers     ProviderLookup
	credentials   *credential.Service
	breaker       *breaker.Breaker
	notifier      *notify.Registry
	maxAttempts   int
}

// New creates an Engine. maxAttempts bounds the total number of
// provider+credential tries across the whole chain, matching the
// reference's settings.proxy.max_fallback_attempts.
func New(res *resolver.Service, providers ProviderLookup, creds *credential.Service, br *breaker.Breaker, notifier *notify.Registry, maxAttempts int) *Engine {
	return &Engine{
		resolver:    res,
		providers:   providers,
		credentials: creds,
		breaker:     br,
		notifier:    notifier,
		maxAttempts: maxAttempts,
	}
}

// classification is the retry/abort decision for a failed attempt,
// matching the reference's should_retry_key/should_retry_provider pair.
type classification struct {
	errorType       string
	retryKey        bool
	retryProvider   bool
}

func classify(err error) classification {
	var perr *provider.Error
	if !errors.As(err, &perr) {
		return classification{errorType: "unknown_error", retryKey: false, retryProvider: false}
	}

	switch perr.Kind {
	case provider.ErrKindRateLimit:
		return classification{errorType: "rate_limit", retryKey: true, retryProvider: true}
	case provider.ErrKindAuthentication:
		return classification{errorType: "authentication", retryKey: false, retryProvider: true}
	case provider.ErrKindQuotaExceeded:
		return classification{errorType: "quota_exceeded", retryKey: false, retryProvider: true}
	case provider.ErrKindModelNotFound:
		return classification{errorType: "model_not_found", retryKey: false, retryProvider: true}
	case provider.ErrKindServerError:
		return classification{errorType: "server_error", retryKey: true, retryProvider: true}
	default:
		return classification{errorType: "unknown_error", retryKey: false, retryProvider: false}
	}
}

// Execute runs req (with req.Model overwritten per-mapping) through the
// fallback chain for modelAlias. newAdapter constructs a live adapter for a
// resolved provider record and decrypted key; it is injected so the
// executor never imports an HTTP client directly.
func (e *Engine) Execute(ctx context.Context, modelAlias string, req provider.ChatRequest, op Operation, newAdapter func(provider.Record, string) (provider.Adapter, error)) (Result, error) {
	start := time.Now()
	var attempts []Attempt

	mappings, err := e.resolver.Resolve(ctx, modelAlias)
	if err != nil {
		return Result{}, fmt.Errorf("resolving model alias: %w", err)
	}
	if len(mappings) == 0 {
		return Result{Success: false, Attempts: attempts}, nil
	}

	attemptCount := 0
	for _, mapping := range mappings {
		if attemptCount >= e.maxAttempts {
			break
		}

		rec, err := e.providers.Get(ctx, mapping.ProviderID)
		if err != nil {
			return Result{}, fmt.Errorf("loading provider %s: %w", mapping.ProviderID, err)
		}

		canExecute, err := e.breaker.CanExecute(ctx, rec.ID)
		if err != nil {
			return Result{}, fmt.Errorf("checking circuit breaker: %w", err)
		}
		if !canExecute {
			attempts = append(attempts, Attempt{
				ProviderID: rec.ID, ProviderName: rec.Name,
				ErrorType: "circuit_breaker_open", ErrorMessage: "circuit breaker is open",
			})
			continue
		}

		keyAttempts := 0
		for keyAttempts < maxKeyAttemptsPerProvider && attemptCount < e.maxAttempts {
			cred, err := e.credentials.Selector().Select(ctx, rec.ID, credential.StrategyPriority)
			if err != nil {
				return Result{}, fmt.Errorf("selecting credential: %w", err)
			}
			if cred == nil {
				attempts = append(attempts, Attempt{
					ProviderID: rec.ID, ProviderName: rec.Name,
					ErrorType: "no_available_keys", ErrorMessage: "no available API keys",
				})
				e.notify(ctx, notify.CredentialExhaustedEvent(rec.ID.String()))
				break
			}

			apiKey, err := e.credentials.Decrypt(*cred)
			if err != nil {
				return Result{}, fmt.Errorf("decrypting credential: %w", err)
			}
			adapter, err := newAdapter(rec, apiKey)
			if err != nil {
				return Result{}, fmt.Errorf("building adapter: %w", err)
			}

			attemptReq := req
			attemptReq.Model = mapping.ProviderModelName
			attemptReq.ExtraParams = mergeExtra(req.ExtraParams, mapping.Config)

			attemptStart := time.Now()
			var resp *provider.ChatResponse
			var callErr error
			if op == OpCompletion {
				resp, callErr = adapter.Completion(ctx, attemptReq)
			} else {
				resp, callErr = adapter.ChatCompletion(ctx, attemptReq)
			}
			latency := time.Since(attemptStart)
			telemetry.ProviderRequestDuration.WithLabelValues(rec.ID.String(), string(op)).Observe(latency.Seconds())

			if callErr == nil {
				e.credentials.Selector().RecordUsage(ctx, cred.ID, tokensUsed(resp), true)
				e.breaker.RecordSuccess(ctx, rec.ID)
				telemetry.FallbackAttemptsTotal.WithLabelValues(rec.ID.String(), "success").Inc()

				attempts = append(attempts, Attempt{
					ProviderID: rec.ID, ProviderName: rec.Name, CredentialID: cred.ID,
					StatusCode: 200, LatencyMS: latency.Milliseconds(), Success: true,
				})
				return Result{
					Success: true, Response: resp, Attempts: attempts,
					TotalLatencyMS:  time.Since(start).Milliseconds(),
					FinalProviderID: rec.ID, FinalCredential: cred.ID,
				}, nil
			}

			e.credentials.Selector().RecordUsage(ctx, cred.ID, 0, false)
			e.breaker.RecordFailure(ctx, rec.ID)
			telemetry.CredentialFailuresTotal.WithLabelValues(rec.ID.String()).Inc()

			c := classify(callErr)
			telemetry.FallbackAttemptsTotal.WithLabelValues(rec.ID.String(), c.errorType).Inc()

			statusCode := 0
			var perr *provider.Error
			if errors.As(callErr, &perr) {
				statusCode = perr.StatusCode
			}
			attempts = append(attempts, Attempt{
				ProviderID: rec.ID, ProviderName: rec.Name, CredentialID: cred.ID,
				ErrorType: c.errorType, ErrorMessage: callErr.Error(),
				StatusCode: statusCode, LatencyMS: latency.Milliseconds(),
			})

			attemptCount++
			keyAttempts++

			if !c.retryProvider {
				return Result{Success: false, Attempts: attempts, TotalLatencyMS: time.Since(start).Milliseconds()}, nil
			}
			if !c.retryKey {
				break // try next provider
			}
		}
	}

	e.notify(ctx, notify.FallbackExhaustedEvent(modelAlias, len(attempts)))
	telemetry.FallbackExhaustedTotal.WithLabelValues(modelAlias).Inc()
	return Result{Success: false, Attempts: attempts, TotalLatencyMS: time.Since(start).Milliseconds()}, nil
}

// ExecuteStream mirrors Execute but for server-sent-event streaming calls.
// A streaming attempt whose adapter call returns an error (a connection
// failure or a non-2xx upstream status) is retried like any other attempt.
// Once the adapter has returned its chunk channel the attempt counts as a
// success, and an error arriving later on the error channel, even before
// the first chunk, is not retried: there is no way to fall back mid-stream,
// matching the reference proxy's behavior
// (its provider.chat_completion either returns a complete response or an
// async iterator — by the time the iterator is handed to the caller, the
// fallback loop has already committed to that provider).
func (e *Engine) ExecuteStream(ctx context.Context, modelAlias string, req provider.ChatRequest, op Operation, newAdapter func(provider.Record, string) (provider.Adapter, error)) (Result, error) {
	start := time.Now()
	var attempts []Attempt

	mappings, err := e.resolver.Resolve(ctx, modelAlias)
	if err != nil {
		return Result{}, fmt.Errorf("resolving model alias: %w", err)
	}
	if len(mappings) == 0 {
		return Result{Success: false, Attempts: attempts}, nil
	}

	attemptCount := 0
	for _, mapping := range mappings {
		if attemptCount >= e.maxAttempts {
			break
		}

		rec, err := e.providers.Get(ctx, mapping.ProviderID)
		if err != nil {
			return Result{}, fmt.Errorf("loading provider %s: %w", mapping.ProviderID, err)
		}

		canExecute, err := e.breaker.CanExecute(ctx, rec.ID)
		if err != nil {
			return Result{}, fmt.Errorf("checking circuit breaker: %w", err)
		}
		if !canExecute {
			attempts = append(attempts, Attempt{ProviderID: rec.ID, ProviderName: rec.Name, ErrorType: "circuit_breaker_open"})
			continue
		}

		keyAttempts := 0
		for keyAttempts < maxKeyAttemptsPerProvider && attemptCount < e.maxAttempts {
			cred, err := e.credentials.Selector().Select(ctx, rec.ID, credential.StrategyPriority)
			if err != nil {
				return Result{}, fmt.Errorf("selecting credential: %w", err)
			}
			if cred == nil {
				attempts = append(attempts, Attempt{ProviderID: rec.ID, ProviderName: rec.Name, ErrorType: "no_available_keys"})
				e.notify(ctx, notify.CredentialExhaustedEvent(rec.ID.String()))
				break
			}

			apiKey, err := e.credentials.Decrypt(*cred)
			if err != nil {
				return Result{}, fmt.Errorf("decrypting credential: %w", err)
			}
			adapter, err := newAdapter(rec, apiKey)
			if err != nil {
				return Result{}, fmt.Errorf("building adapter: %w", err)
			}

			attemptReq := req
			attemptReq.Model = mapping.ProviderModelName
			attemptReq.ExtraParams = mergeExtra(req.ExtraParams, mapping.Config)

			attemptStart := time.Now()
			var chunks <-chan provider.StreamChunk
			var errs <-chan error
			var callErr error
			if op == OpCompletion {
				chunks, errs, callErr = adapter.StreamCompletion(ctx, attemptReq)
			} else {
				chunks, errs, callErr = adapter.StreamChatCompletion(ctx, attemptReq)
			}
			latency := time.Since(attemptStart)
			telemetry.ProviderRequestDuration.WithLabelValues(rec.ID.String(), "stream_"+string(op)).Observe(latency.Seconds())

			if callErr == nil {
				e.credentials.Selector().RecordUsage(ctx, cred.ID, 0, true)
				e.breaker.RecordSuccess(ctx, rec.ID)
				telemetry.FallbackAttemptsTotal.WithLabelValues(rec.ID.String(), "success").Inc()

				attempts = append(attempts, Attempt{
					ProviderID: rec.ID, ProviderName: rec.Name, CredentialID: cred.ID,
					StatusCode: 200, LatencyMS: latency.Milliseconds(), Success: true,
				})
				return Result{
					Success: true, Stream: chunks, StreamErrs: errs, Attempts: attempts,
					TotalLatencyMS:  time.Since(start).Milliseconds(),
					FinalProviderID: rec.ID, FinalCredential: cred.ID,
				}, nil
			}

			e.credentials.Selector().RecordUsage(ctx, cred.ID, 0, false)
			e.breaker.RecordFailure(ctx, rec.ID)
			telemetry.CredentialFailuresTotal.WithLabelValues(rec.ID.String()).Inc()

			c := classify(callErr)
			telemetry.FallbackAttemptsTotal.WithLabelValues(rec.ID.String(), c.errorType).Inc()

			statusCode := 0
			var perr *provider.Error
			if errors.As(callErr, &perr) {
				statusCode = perr.StatusCode
			}
			attempts = append(attempts, Attempt{
				ProviderID: rec.ID, ProviderName: rec.Name, CredentialID: cred.ID,
				ErrorType: c.errorType, ErrorMessage: callErr.Error(),
				StatusCode: statusCode, LatencyMS: latency.Milliseconds(),
			})

			attemptCount++
			keyAttempts++

			if !c.retryProvider {
				return Result{Success: false, Attempts: attempts, TotalLatencyMS: time.Since(start).Milliseconds()}, nil
			}
			if !c.retryKey {
				break
			}
		}
	}

	e.notify(ctx, notify.FallbackExhaustedEvent(modelAlias, len(attempts)))
	telemetry.FallbackExhaustedTotal.WithLabelValues(modelAlias).Inc()
	return Result{Success: false, Attempts: attempts, TotalLatencyMS: time.Since(start).Milliseconds()}, nil
}

func (e *Engine) notify(ctx context.Context, event notify.Event) {
	if e.notifier == nil {
		return
	}
	e.notifier.NotifyAll(ctx, event)
}

func tokensUsed(resp *provider.ChatResponse) int {
	if resp == nil {
		return 0
	}
	return resp.Usage.TotalTokens
}

func mergeExtra(base, overlay map[string]any) map[string]any {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
