package provider

import (
	"encoding/json"
	"fmt"
)

// ErrorKind classifies an upstream provider failure so the fallback
// executor can decide whether to retry the same credential, rotate to a
// different credential, or move on to the next provider.
type ErrorKind string

const (
	ErrKindAuthentication ErrorKind = "authentication"
	ErrKindRateLimit      ErrorKind = "rate_limit"
	ErrKindQuotaExceeded  ErrorKind = "quota_exceeded"
	ErrKindModelNotFound  ErrorKind = "model_not_found"
	ErrKindServerError    ErrorKind = "server_error"
	ErrKindUnknown        ErrorKind = "unknown"
)

// Error is the error type every adapter returns for a failed upstream call.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
}

// upstreamErrorBody mirrors the OpenAI-shaped {"error": {...}} envelope
// most providers (and our own /v1 surface) use.
type upstreamErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ClassifyHTTPError turns a non-2xx upstream response into a typed *Error,
// mirroring the status-code switch in the reference proxy's error handler.
func ClassifyHTTPError(statusCode int, body []byte) *Error {
	message := "unknown error"
	var parsed upstreamErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	} else if len(body) > 0 {
		message = string(body)
	}

	kind := ErrKindUnknown
	switch {
	case statusCode == 401:
		kind = ErrKindAuthentication
	case statusCode == 404:
		kind = ErrKindModelNotFound
	case statusCode == 402:
		kind = ErrKindQuotaExceeded
	case statusCode == 429:
		kind = ErrKindRateLimit
	case statusCode >= 500:
		kind = ErrKindServerError
	}

	return &Error{Kind: kind, StatusCode: statusCode, Message: message}
}
