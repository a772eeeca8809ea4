package executor

import (
	"errors"
	"testing"

	"github.com/nexusgate/gateway/pkg/provider"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantType      string
		wantRetryKey  bool
		wantRetryProv bool
	}{
		{"rate limit retries same provider's next key", &provider.Error{Kind: provider.ErrKindRateLimit, StatusCode: 429}, "rate_limit", true, true},
		{"authentication", &provider.Error{Kind: provider.ErrKindAuthentication, StatusCode: 401}, "authentication", false, true},
		{"quota exceeded", &provider.Error{Kind: provider.ErrKindQuotaExceeded, StatusCode: 402}, "quota_exceeded", false, true},
		{"server error", &provider.Error{Kind: provider.ErrKindServerError, StatusCode: 503}, "server_error", true, true},
		{"model not found ends provider but allows the next one", &provider.Error{Kind: provider.ErrKindModelNotFound, StatusCode: 404}, "model_not_found", false, true},
		{"non-provider error is fatal", errors.New("boom"), "unknown_error", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if got.errorType != tt.wantType {
				t.Errorf("errorType = %q, want %q", got.errorType, tt.wantType)
			}
			if got.retryKey != tt.wantRetryKey {
				t.Errorf("retryKey = %v, want %v", got.retryKey, tt.wantRetryKey)
			}
			if got.retryProvider != tt.wantRetryProv {
				t.Errorf("retryProvider = %v, want %v", got.retryProvider, tt.wantRetryProv)
			}
		})
	}
}

func TestMergeExtra(t *testing.T) {
	base := map[string]any{"a": 1, "b": 2}
	overlay := map[string]any{"b": 3, "c": 4}

	merged := mergeExtra(base, overlay)
	if merged["a"] != 1 || merged["b"] != 3 || merged["c"] != 4 {
		t.Errorf("mergeExtra = %v, want overlay values to win on conflict", merged)
	}

	if mergeExtra(nil, nil) != nil {
		t.Error("mergeExtra(nil, nil) should be nil")
	}
}

func TestTokensUsed_NilResponse(t *testing.T) {
	if tokensUsed(nil) != 0 {
		t.Error("tokensUsed(nil) should be 0")
	}
}
