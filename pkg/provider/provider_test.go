package provider

import (
	"context"
	"strings"
	"testing"
)

func TestMockAdapter_ChatCompletion(t *testing.T) {
	a := NewMockAdapter(Config{})
	resp, err := a.ChatCompletion(context.Background(), ChatRequest{
		Model:    "mock-gpt-4",
		Messages: []Message{{Role: "user", Content: "hello there"}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion returned error: %v", err)
	}
	if !strings.Contains(resp.Content, "hello there") {
		t.Errorf("Content = %q, want it to echo the input message", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("FinishReason = %q, want %q", resp.FinishReason, "stop")
	}
}

func TestMockAdapter_StreamChatCompletion(t *testing.T) {
	a := NewMockAdapter(Config{})
	chunks, errs, err := a.StreamChatCompletion(context.Background(), ChatRequest{
		Model:    "mock-gpt-4",
		Messages: []Message{{Role: "user", Content: "stream me"}},
	})
	if err != nil {
		t.Fatalf("StreamChatCompletion returned error: %v", err)
	}

	var got []StreamChunk
	for c := range chunks {
		got = append(got, c)
	}
	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
	default:
	}

	if len(got) == 0 {
		t.Fatal("expected at least one chunk")
	}
	last := got[len(got)-1]
	if !last.Done || last.FinishReason != "stop" {
		t.Errorf("last chunk = %+v, want Done=true FinishReason=stop", last)
	}
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{401, ErrKindAuthentication},
		{402, ErrKindQuotaExceeded},
		{404, ErrKindModelNotFound},
		{429, ErrKindRateLimit},
		{500, ErrKindServerError},
		{503, ErrKindServerError},
		{418, ErrKindUnknown},
	}

	for _, tt := range tests {
		got := ClassifyHTTPError(tt.status, []byte(`{"error":{"message":"boom"}}`))
		if got.Kind != tt.want {
			t.Errorf("ClassifyHTTPError(%d).Kind = %q, want %q", tt.status, got.Kind, tt.want)
		}
		if got.Message != "boom" {
			t.Errorf("ClassifyHTTPError(%d).Message = %q, want %q", tt.status, got.Message, "boom")
		}
	}
}

func TestNewAdapter_UnknownKind(t *testing.T) {
	if _, err := NewAdapter("bogus", Config{}); err == nil {
		t.Fatal("expected error for unknown provider kind")
	}
}
