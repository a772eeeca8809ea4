package provider

import (
	"context"
	"fmt"
)

// Adapter is the interface every upstream LLM provider implements, in the
// normalized request/response shapes defined in types.go.
type Adapter interface {
	Kind() Kind

	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	StreamChatCompletion(ctx context.Context, req ChatRequest) (<-chan StreamChunk, <-chan error, error)

	Completion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	StreamCompletion(ctx context.Context, req ChatRequest) (<-chan StreamChunk, <-chan error, error)

	Embedding(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
	HealthCheck(ctx context.Context) bool
}

// Config holds the per-credential wiring an adapter needs: where to send
// requests and which secret to send with them. BaseURL lets self-hosted or
// proxy-compatible deployments (e.g. Ollama, Azure OpenAI) override the
// provider's default endpoint.
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// NewAdapter constructs the Adapter for kind, wired with cfg. Unknown kinds
// are a configuration error caught at provider-registration time, not a
// runtime fallback path.
func NewAdapter(kind Kind, cfg Config) (Adapter, error) {
	switch kind {
	case KindOpenAI:
		return NewOpenAIAdapter(cfg), nil
	case KindMock:
		return NewMockAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
}
