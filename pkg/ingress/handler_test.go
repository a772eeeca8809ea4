package ingress

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/nexusgate/gateway/pkg/executor"
	"github.com/nexusgate/gateway/pkg/provider"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantOK  bool
	}{
		{"valid bearer", "Bearer sk-abc123", "sk-abc123", true},
		{"missing prefix", "sk-abc123", "", false},
		{"empty header", "", "", false},
		{"trims whitespace", "Bearer  sk-abc123  ", "sk-abc123", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, ok := bearerToken(r)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("bearerToken() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestClientIdentityUUID_Deterministic(t *testing.T) {
	a := clientIdentityUUID("sk-same-token")
	b := clientIdentityUUID("sk-same-token")
	if a != b {
		t.Error("clientIdentityUUID should be deterministic for the same token")
	}
	if clientIdentityUUID("sk-one") == clientIdentityUUID("sk-two") {
		t.Error("clientIdentityUUID should differ for different tokens")
	}
	if clientIdentityUUID("") != uuid.Nil {
		t.Error("clientIdentityUUID(\"\") should be uuid.Nil")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"remote addr only", "203.0.113.5:4242", "", "", "203.0.113.5"},
		{"x-forwarded-for wins", "203.0.113.5:4242", "198.51.100.1, 10.0.0.1", "", "198.51.100.1"},
		{"x-real-ip used when no xff", "203.0.113.5:4242", "", "198.51.100.9", "198.51.100.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseUUID_FallsBackToRandomOnInvalid(t *testing.T) {
	valid := uuid.New()
	if got := parseUUID(valid.String()); got != valid {
		t.Errorf("parseUUID(%q) = %v, want %v", valid, got, valid)
	}
	if got := parseUUID("not-a-uuid"); got == uuid.Nil {
		t.Error("parseUUID of garbage should not be uuid.Nil")
	}
}

func TestStatusForErrorType(t *testing.T) {
	tests := map[string]int{
		"authentication":       http.StatusUnauthorized,
		"rate_limit":           http.StatusTooManyRequests,
		"quota_exceeded":       http.StatusPaymentRequired,
		"model_not_found":      http.StatusNotFound,
		"server_error":         http.StatusBadGateway,
		"circuit_breaker_open": http.StatusServiceUnavailable,
		"no_available_keys":    http.StatusServiceUnavailable,
		"unknown_error":        http.StatusInternalServerError,
	}
	for errType, want := range tests {
		if got := statusForErrorType(errType); got != want {
			t.Errorf("statusForErrorType(%q) = %d, want %d", errType, got, want)
		}
	}
}

func TestLastErrorType_EmptyChainIsModelNotFound(t *testing.T) {
	if got := lastErrorType(nil); got != "model_not_found" {
		t.Errorf("lastErrorType(nil) = %q, want model_not_found", got)
	}
	attempts := []executor.Attempt{
		{ErrorType: "rate_limit"},
		{ErrorType: "server_error"},
	}
	if got := lastErrorType(attempts); got != "server_error" {
		t.Errorf("lastErrorType() = %q, want server_error", got)
	}
}

func TestFallbackFailureMessage(t *testing.T) {
	if got := fallbackFailureMessage(executor.Result{}); got == "" {
		t.Error("fallbackFailureMessage with no attempts should not be empty")
	}
	result := executor.Result{Attempts: []executor.Attempt{
		{ErrorMessage: "first failure"},
		{ErrorMessage: "final failure"},
	}}
	if got := fallbackFailureMessage(result); got != "final failure" {
		t.Errorf("fallbackFailureMessage() = %q, want %q", got, "final failure")
	}
}

func TestChatCompletionResponse_ChatShape(t *testing.T) {
	resp := &provider.ChatResponse{
		Content:      "hello there",
		Model:        "gpt-4o-mini",
		FinishReason: "stop",
		ResponseID:   "resp-1",
		Created:      1234,
	}
	out := chatCompletionResponse("my-alias", resp, false)
	if out.Object != "chat.completion" {
		t.Errorf("Object = %q, want chat.completion", out.Object)
	}
	if len(out.Choices) != 1 || out.Choices[0].Message == nil {
		t.Fatal("expected exactly one choice with a message")
	}
	if out.Choices[0].Message.Content != "hello there" {
		t.Errorf("Choices[0].Message.Content = %q", out.Choices[0].Message.Content)
	}
	if out.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want gpt-4o-mini (from response, not alias)", out.Model)
	}
}

func TestChatCompletionResponse_LegacyShape(t *testing.T) {
	resp := &provider.ChatResponse{Content: "completion text", FinishReason: "length"}
	out := chatCompletionResponse("my-alias", resp, true)
	if out.Object != "text_completion" {
		t.Errorf("Object = %q, want text_completion", out.Object)
	}
	if len(out.Choices) != 1 || out.Choices[0].Text != "completion text" {
		t.Fatal("expected exactly one choice carrying Text, not Message")
	}
	if out.Choices[0].Message != nil {
		t.Error("legacy completion choice should not set Message")
	}
	if out.Model != "my-alias" {
		t.Errorf("Model = %q, want fallback to requested alias when response carries none", out.Model)
	}
}
