package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MockAdapter serves canned responses without calling any upstream. It
// exists for local development and integration tests that exercise the
// fallback executor without real provider credentials.
type MockAdapter struct {
	simulateDelay time.Duration
}

// NewMockAdapter creates a MockAdapter. cfg.TimeoutSeconds is unused; the
// mock never blocks on network I/O.
func NewMockAdapter(cfg Config) *MockAdapter {
	return &MockAdapter{simulateDelay: 10 * time.Millisecond}
}

// Kind implements Adapter.
func (m *MockAdapter) Kind() Kind { return KindMock }

func lastUserMessage(req ChatRequest) string {
	if len(req.Messages) == 0 {
		return "no message"
	}
	return req.Messages[len(req.Messages)-1].Content
}

// ChatCompletion implements Adapter.
func (m *MockAdapter) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	time.Sleep(m.simulateDelay)
	content := fmt.Sprintf("This is a mock response to: %s", lastUserMessage(req))
	return mockResponse(req.Model, content), nil
}

// StreamChatCompletion implements Adapter.
func (m *MockAdapter) StreamChatCompletion(ctx context.Context, req ChatRequest) (<-chan StreamChunk, <-chan error, error) {
	content := fmt.Sprintf("This is a mock response to: %s", lastUserMessage(req))
	return m.stream(req.Model, content), make(chan error, 1), nil
}

// Completion implements Adapter.
func (m *MockAdapter) Completion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	time.Sleep(m.simulateDelay)
	prompt := req.Prompt
	if prompt == "" {
		prompt = "no prompt"
	}
	return mockResponse(req.Model, fmt.Sprintf("Mock completion for: %s", prompt)), nil
}

// StreamCompletion implements Adapter.
func (m *MockAdapter) StreamCompletion(ctx context.Context, req ChatRequest) (<-chan StreamChunk, <-chan error, error) {
	prompt := req.Prompt
	if prompt == "" {
		prompt = "no prompt"
	}
	return m.stream(req.Model, fmt.Sprintf("Mock completion for: %s", prompt)), make(chan error, 1), nil
}

func (m *MockAdapter) stream(model, content string) <-chan StreamChunk {
	out := make(chan StreamChunk)
	words := strings.Fields(content)
	responseID := uuid.NewString()

	go func() {
		defer close(out)
		for i, w := range words {
			time.Sleep(5 * time.Millisecond)
			piece := w
			if i < len(words)-1 {
				piece += " "
			}
			out <- StreamChunk{Content: piece, Model: model, ResponseID: responseID}
		}
		out <- StreamChunk{
			FinishReason: "stop",
			Model:        model,
			ResponseID:   responseID,
			Usage:        &Usage{PromptTokens: 10, CompletionTokens: len(words), TotalTokens: 10 + len(words)},
			Done:         true,
		}
	}()
	return out
}

// Embedding implements Adapter.
func (m *MockAdapter) Embedding(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	time.Sleep(m.simulateDelay)

	embeddings := make([][]float64, len(req.Input))
	totalTokens := 0
	for i, text := range req.Input {
		vec := make([]float64, 512)
		h := fnv32(text)
		for j := range vec {
			h = h*2654435761 + uint32(j)
			vec[j] = float64(h%1000) / 1000.0
		}
		embeddings[i] = vec
		totalTokens += len(strings.Fields(text))
	}

	return &EmbeddingResponse{
		Embeddings: embeddings,
		Model:      req.Model,
		Usage:      Usage{PromptTokens: totalTokens, TotalTokens: totalTokens},
	}, nil
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// ListModels implements Adapter.
func (m *MockAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	now := time.Now().Unix()
	return []ModelInfo{
		{ID: "mock-gpt-3.5-turbo", Object: "model", Created: now, OwnedBy: "mock-provider"},
		{ID: "mock-gpt-4", Object: "model", Created: now, OwnedBy: "mock-provider"},
		{ID: "mock-text-embedding-ada-002", Object: "model", Created: now, OwnedBy: "mock-provider"},
	}, nil
}

// HealthCheck implements Adapter.
func (m *MockAdapter) HealthCheck(ctx context.Context) bool { return true }

func mockResponse(model, content string) *ChatResponse {
	words := strings.Fields(content)
	return &ChatResponse{
		Content:      content,
		Model:        model,
		Usage:        Usage{PromptTokens: 10, CompletionTokens: len(words), TotalTokens: 10 + len(words)},
		FinishReason: "stop",
		ResponseID:   uuid.NewString(),
		Created:      time.Now().Unix(),
	}
}
