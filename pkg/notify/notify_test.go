package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	p := NewSlackProvider("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg.Register(p)

	got, ok := reg.Get("slack")
	if !ok {
		t.Fatalf("expected provider to be registered")
	}
	if got.Name() != "slack" {
		t.Errorf("Name() = %q, want %q", got.Name(), "slack")
	}

	if _, ok := reg.Get("mattermost"); ok {
		t.Errorf("expected unregistered provider lookup to fail")
	}
}

func TestSlackProvider_DisabledIsNoop(t *testing.T) {
	p := NewSlackProvider("", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if p.IsEnabled() {
		t.Fatalf("expected provider without webhook URL to be disabled")
	}
	if err := p.Notify(context.Background(), CircuitOpenEvent("openai-primary", 5)); err != nil {
		t.Errorf("Notify on disabled provider should be a no-op, got error: %v", err)
	}
}

type stubProvider struct {
	name string
	err  error
	got  Event
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Notify(_ context.Context, event Event) error {
	s.got = event
	return s.err
}

func TestRegistry_NotifyAll(t *testing.T) {
	reg := NewRegistry()
	ok := &stubProvider{name: "ok"}
	failing := &stubProvider{name: "failing", err: errors.New("boom")}
	reg.Register(ok)
	reg.Register(failing)

	event := FallbackExhaustedEvent("gpt-4o", 3)
	err := reg.NotifyAll(context.Background(), event)
	if err == nil {
		t.Fatalf("expected NotifyAll to return the failing provider's error")
	}
	if ok.got.Kind != KindFallbackExhausted {
		t.Errorf("ok provider did not receive event")
	}
}
