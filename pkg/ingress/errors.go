package ingress

import (
	"encoding/json"
	"net/http"

	"github.com/nexusgate/gateway/pkg/executor"
)

// respondError writes the OpenAI-compatible {"error": {...}} envelope.
func respondError(w http.ResponseWriter, requestID string, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorBody{
		Message:   message,
		Type:      errType,
		RequestID: requestID,
	}})
}

// statusForErrorType maps the error taxonomy onto an HTTP status for the
// final, unrecovered failure returned to the client.
func statusForErrorType(errType string) int {
	switch errType {
	case "authentication":
		return http.StatusUnauthorized
	case "rate_limit":
		return http.StatusTooManyRequests
	case "quota_exceeded":
		return http.StatusPaymentRequired
	case "model_not_found":
		return http.StatusNotFound
	case "server_error":
		return http.StatusBadGateway
	case "circuit_breaker_open", "no_available_keys":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// lastErrorType returns the error type of the final attempt in a chain, or
// "model_not_found" if the chain is empty (the alias has no mappings at all).
func lastErrorType(attempts []executor.Attempt) string {
	if len(attempts) == 0 {
		return "model_not_found"
	}
	return attempts[len(attempts)-1].ErrorType
}
