package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIAdapter speaks the OpenAI-shaped wire format used by OpenAI itself
// and by the many OpenAI-compatible self-hosted/gateway deployments
// (vLLM, LM Studio, Azure OpenAI with a custom BaseURL, etc).
type OpenAIAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenAIAdapter creates an OpenAIAdapter. An empty BaseURL defaults to
// api.openai.com.
func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &OpenAIAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Kind implements Adapter.
func (a *OpenAIAdapter) Kind() Kind { return KindOpenAI }

func (a *OpenAIAdapter) headers(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "nexusgate-proxy/1.0")
}

func chatPayload(req ChatRequest) map[string]any {
	payload := map[string]any{"model": req.Model}
	if len(req.Messages) > 0 {
		payload["messages"] = req.Messages
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		payload["max_tokens"] = *req.MaxTokens
	}
	if req.TopP != nil {
		payload["top_p"] = *req.TopP
	}
	if req.FrequencyPenalty != nil {
		payload["frequency_penalty"] = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		payload["presence_penalty"] = *req.PresencePenalty
	}
	if len(req.Stop) > 0 {
		payload["stop"] = req.Stop
	}
	if req.User != "" {
		payload["user"] = req.User
	}
	if req.Stream {
		payload["stream"] = true
	}
	for k, v := range req.ExtraParams {
		payload[k] = v
	}
	return payload
}

func completionPayload(req ChatRequest) map[string]any {
	payload := chatPayload(req)
	delete(payload, "messages")
	payload["prompt"] = req.Prompt
	return payload
}

// ChatCompletion implements Adapter.
func (a *OpenAIAdapter) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return a.doNonStreaming(ctx, "/chat/completions", chatPayload(req), parseChatResponse)
}

// StreamChatCompletion implements Adapter.
func (a *OpenAIAdapter) StreamChatCompletion(ctx context.Context, req ChatRequest) (<-chan StreamChunk, <-chan error, error) {
	payload := chatPayload(req)
	payload["stream"] = true
	return a.doStreaming(ctx, "/chat/completions", payload, parseChatStreamChunk)
}

// Completion implements Adapter.
func (a *OpenAIAdapter) Completion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return a.doNonStreaming(ctx, "/completions", completionPayload(req), parseCompletionResponse)
}

// StreamCompletion implements Adapter.
func (a *OpenAIAdapter) StreamCompletion(ctx context.Context, req ChatRequest) (<-chan StreamChunk, <-chan error, error) {
	payload := completionPayload(req)
	payload["stream"] = true
	return a.doStreaming(ctx, "/completions", payload, parseCompletionStreamChunk)
}

// Embedding implements Adapter.
func (a *OpenAIAdapter) Embedding(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	payload := map[string]any{"model": req.Model, "input": req.Input}
	if req.User != "" {
		payload["user"] = req.User
	}
	if req.EncodingFormat != "" {
		payload["encoding_format"] = req.EncodingFormat
	}

	body, err := a.post(ctx, "/embeddings", payload)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding embeddings response: %w", err)
	}

	var decoded struct {
		Model string `json:"model"`
		Data  []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
		Usage Usage `json:"usage"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding embeddings response: %w", err)
	}

	embeddings := make([][]float64, len(decoded.Data))
	for i, d := range decoded.Data {
		embeddings[i] = d.Embedding
	}

	return &EmbeddingResponse{
		Embeddings: embeddings,
		Model:      decoded.Model,
		Usage:      decoded.Usage,
		Raw:        raw,
	}, nil
}

// ListModels implements Adapter.
func (a *OpenAIAdapter) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("building list models request: %w", err)
	}
	a.headers(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading list models response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode, body)
	}

	var decoded struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding list models response: %w", err)
	}
	return decoded.Data, nil
}

// HealthCheck implements Adapter.
func (a *OpenAIAdapter) HealthCheck(ctx context.Context) bool {
	models, err := a.ListModels(ctx)
	return err == nil && len(models) > 0
}

func (a *OpenAIAdapter) post(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	a.headers(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling upstream: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading upstream response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode, body)
	}
	return body, nil
}

func (a *OpenAIAdapter) doNonStreaming(ctx context.Context, path string, payload map[string]any, parse func([]byte) (*ChatResponse, error)) (*ChatResponse, error) {
	body, err := a.post(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	return parse(body)
}

func (a *OpenAIAdapter) doStreaming(ctx context.Context, path string, payload map[string]any, parse func([]byte) StreamChunk) (<-chan StreamChunk, <-chan error, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding request payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, nil, fmt.Errorf("building request: %w", err)
	}
	a.headers(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("calling upstream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, nil, ClassifyHTTPError(resp.StatusCode, body)
	}

	chunks := make(chan StreamChunk)
	errs := make(chan error, 1)

	go func() {
		defer resp.Body.Close()
		defer close(chunks)
		defer close(errs)

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if strings.TrimSpace(data) == "[DONE]" {
				return
			}

			select {
			case chunks <- parse([]byte(data)):
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("reading stream: %w", err)
		}
	}()

	return chunks, errs, nil
}

func parseChatResponse(body []byte) (*ChatResponse, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding chat completion response: %w", err)
	}

	var decoded struct {
		Model   string `json:"model"`
		ID      string `json:"id"`
		Created int64  `json:"created"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding chat completion response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, &Error{Kind: ErrKindUnknown, Message: "no choices in upstream response"}
	}

	return &ChatResponse{
		Content:      decoded.Choices[0].Message.Content,
		Model:        decoded.Model,
		Usage:        decoded.Usage,
		FinishReason: decoded.Choices[0].FinishReason,
		ResponseID:   decoded.ID,
		Created:      decoded.Created,
		Raw:          raw,
	}, nil
}

func parseCompletionResponse(body []byte) (*ChatResponse, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding completion response: %w", err)
	}

	var decoded struct {
		Model   string `json:"model"`
		ID      string `json:"id"`
		Created int64  `json:"created"`
		Choices []struct {
			Text         string `json:"text"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage Usage `json:"usage"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding completion response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, &Error{Kind: ErrKindUnknown, Message: "no choices in upstream response"}
	}

	return &ChatResponse{
		Content:      decoded.Choices[0].Text,
		Model:        decoded.Model,
		Usage:        decoded.Usage,
		FinishReason: decoded.Choices[0].FinishReason,
		ResponseID:   decoded.ID,
		Created:      decoded.Created,
		Raw:          raw,
	}, nil
}

func parseChatStreamChunk(data []byte) StreamChunk {
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)

	var decoded struct {
		Model   string `json:"model"`
		ID      string `json:"id"`
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage *Usage `json:"usage"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil || len(decoded.Choices) == 0 {
		return StreamChunk{Raw: raw}
	}

	return StreamChunk{
		Content:      decoded.Choices[0].Delta.Content,
		FinishReason: decoded.Choices[0].FinishReason,
		Model:        decoded.Model,
		ResponseID:   decoded.ID,
		Usage:        decoded.Usage,
		Raw:          raw,
	}
}

func parseCompletionStreamChunk(data []byte) StreamChunk {
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)

	var decoded struct {
		Model   string `json:"model"`
		ID      string `json:"id"`
		Choices []struct {
			Text         string `json:"text"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage *Usage `json:"usage"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil || len(decoded.Choices) == 0 {
		return StreamChunk{Raw: raw}
	}

	return StreamChunk{
		Content:      decoded.Choices[0].Text,
		FinishReason: decoded.Choices[0].FinishReason,
		Model:        decoded.Model,
		ResponseID:   decoded.ID,
		Usage:        decoded.Usage,
		Raw:          raw,
	}
}
