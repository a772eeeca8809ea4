// Package ingress implements the OpenAI-compatible /v1/* HTTP surface:
// chat completions, legacy completions, embeddings, and model listing. It
// never validates the caller's bearer token against a store — per the
// proxy's auth model, that token is opaque and scoped to the client, not
// forwarded upstream.
package ingress

import "github.com/nexusgate/gateway/pkg/provider"

// ChatCompletionRequest is the OpenAI-compatible chat request body.
type ChatCompletionRequest struct {
	Model            string             `json:"model" validate:"required"`
	Messages         []provider.Message `json:"messages" validate:"required,min=1,dive"`
	Temperature      *float64           `json:"temperature,omitempty"`
	MaxTokens        *int               `json:"max_tokens,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
	FrequencyPenalty *float64           `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64           `json:"presence_penalty,omitempty"`
	Stop             []string           `json:"stop,omitempty"`
	Stream           bool               `json:"stream,omitempty"`
	User             string             `json:"user,omitempty"`
}

func (r ChatCompletionRequest) toProviderRequest() provider.ChatRequest {
	return provider.ChatRequest{
		Model:            r.Model,
		Messages:         r.Messages,
		Temperature:      r.Temperature,
		MaxTokens:        r.MaxTokens,
		TopP:             r.TopP,
		FrequencyPenalty: r.FrequencyPenalty,
		PresencePenalty:  r.PresencePenalty,
		Stop:             r.Stop,
		Stream:           r.Stream,
		User:             r.User,
	}
}

// CompletionRequest is the OpenAI-compatible legacy completion request body.
type CompletionRequest struct {
	Model            string   `json:"model" validate:"required"`
	Prompt           string   `json:"prompt" validate:"required"`
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	Stream           bool     `json:"stream,omitempty"`
	User             string   `json:"user,omitempty"`
}

func (r CompletionRequest) toProviderRequest() provider.ChatRequest {
	return provider.ChatRequest{
		Model:            r.Model,
		Prompt:           r.Prompt,
		Temperature:      r.Temperature,
		MaxTokens:        r.MaxTokens,
		TopP:             r.TopP,
		FrequencyPenalty: r.FrequencyPenalty,
		PresencePenalty:  r.PresencePenalty,
		Stop:             r.Stop,
		Stream:           r.Stream,
		User:             r.User,
	}
}

// EmbeddingRequestBody is the OpenAI-compatible embeddings request body.
type EmbeddingRequestBody struct {
	Model          string   `json:"model" validate:"required"`
	Input          []string `json:"input" validate:"required,min=1"`
	User           string   `json:"user,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

// ChatCompletionResponse is the OpenAI-compatible chat response body.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a single completion choice.
type Choice struct {
	Index        int               `json:"index"`
	Message      *provider.Message `json:"message,omitempty"`
	Text         string            `json:"text,omitempty"`
	FinishReason string            `json:"finish_reason"`
}

// Usage mirrors the OpenAI usage object.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// EmbeddingResponseBody is the OpenAI-compatible embeddings response body.
type EmbeddingResponseBody struct {
	Object string           `json:"object"`
	Data   []EmbeddingDatum `json:"data"`
	Model  string           `json:"model"`
	Usage  Usage            `json:"usage"`
}

// EmbeddingDatum is a single embedding vector entry.
type EmbeddingDatum struct {
	Index     int       `json:"index"`
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
}

// ModelListResponse is the OpenAI-compatible /v1/models body.
type ModelListResponse struct {
	Object string          `json:"object"`
	Data   []provider.ModelInfo `json:"data"`
}

// errorEnvelope is the error shape every /v1/* failure returns.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
}
