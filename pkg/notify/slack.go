package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// SlackProvider posts Event notifications to a single Slack channel via an
// incoming webhook. A webhook is simpler operational wiring than a bot
// token for a service with no interactive UI.
type SlackProvider struct {
	webhookURL string
	logger     *slog.Logger
}

// NewSlackProvider creates a Slack notify.Provider. If webhookURL is empty,
// the provider is a logging-only no-op, matching the teacher's pattern of
// degrading gracefully when a notification backend isn't configured.
func NewSlackProvider(webhookURL string, logger *slog.Logger) *SlackProvider {
	return &SlackProvider{webhookURL: webhookURL, logger: logger}
}

// Name implements Provider.
func (s *SlackProvider) Name() string { return "slack" }

// IsEnabled reports whether a webhook URL is configured.
func (s *SlackProvider) IsEnabled() bool { return s.webhookURL != "" }

// Notify implements Provider.
func (s *SlackProvider) Notify(ctx context.Context, event Event) error {
	if !s.IsEnabled() {
		s.logger.Debug("slack notify disabled, skipping event",
			"kind", event.Kind, "provider_id", event.ProviderID)
		return nil
	}

	msg := &goslack.WebhookMessage{
		Text:   fmt.Sprintf("%s %s", severityEmoji(event.Severity), event.Title),
		Blocks: &goslack.Blocks{BlockSet: eventBlocks(event)},
	}

	if err := goslack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return fmt.Errorf("posting event to slack webhook: %w", err)
	}

	s.logger.Info("posted event to slack",
		"kind", event.Kind, "provider_id", event.ProviderID, "model_alias", event.ModelAlias)
	return nil
}

func eventBlocks(event Event) []goslack.Block {
	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType,
			fmt.Sprintf("%s %s", severityEmoji(event.Severity), event.Title), true, false),
	)

	var fields []*goslack.TextBlockObject
	if event.ProviderID != "" {
		fields = append(fields, goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("*Provider:* %s", event.ProviderID), false, false))
	}
	if event.ModelAlias != "" {
		fields = append(fields, goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("*Model alias:* %s", event.ModelAlias), false, false))
	}

	blocks := []goslack.Block{header}
	if len(fields) > 0 {
		blocks = append(blocks, goslack.NewSectionBlock(nil, fields, nil))
	}
	if event.Message != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, event.Message, false, false),
			nil, nil,
		))
	}
	return blocks
}

func severityEmoji(sev Severity) string {
	switch sev {
	case SeverityCritical:
		return "\U0001F534"
	case SeverityWarning:
		return "\U0001F7E1"
	default:
		return "\U0001F535"
	}
}
