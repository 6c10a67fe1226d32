// Package alerting posts fatal-error notifications to Slack: an
// allocation drift storm, a ledger reconciliation mismatch, a worker
// task that exhausted its retries on a condition that needs a human.
// It never blocks request handling on Slack being reachable.
package alerting

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier posts fatal-error alerts to a single configured channel. If
// botToken is empty it is a no-op, logging instead of calling out.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Slack Notifier. If botToken is empty, the
// notifier is a no-op (logging only) — this keeps local development and
// tests from requiring real Slack credentials.
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the notifier has a client and a channel.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// PostFatal posts a fatal-error alert. component names the subsystem
// (e.g. "ledger", "slotmanager", "worker"); detail is a short human
// description of what went wrong.
func (n *Notifier) PostFatal(ctx context.Context, component, detail string) error {
	if !n.IsEnabled() {
		n.logger.Warn("slack notifier disabled, skipping fatal alert", "component", component, "detail", detail)
		return nil
	}

	text := fmt.Sprintf(":rotating_light: *%s*: %s", component, detail)
	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting fatal alert to slack: %w", err)
	}
	n.logger.Info("posted fatal alert to slack", "component", component)
	return nil
}
