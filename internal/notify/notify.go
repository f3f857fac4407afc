// Package notify delivers user-facing messages via pluggable notifiers.
//
// The default implementation publishes to an ntfy topic and degrades to
// a no-op when notifications are not configured. Delivery is fire and
// forget; lifecycle logic never depends on a notification landing.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-spotify-group-queue/internal/engine"
)

const requestTimeout = 10 * time.Second

// New builds a notifier backed by ntfy when a topic is configured, and a
// noop otherwise.
func New(topicURL string, logger *log.Logger) engine.Notifier {
	topicURL = strings.TrimSpace(topicURL)
	if topicURL == "" {
		return noopNotifier{}
	}
	return &ntfyNotifier{
		endpoint: topicURL,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   logger,
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, string) error { return nil }

type ntfyNotifier struct {
	endpoint string
	client   *http.Client
	logger   *log.Logger
}

// Notify posts the message to the configured topic. The target user is
// carried in a header so downstream routing can fan out per user.
func (n *ntfyNotifier) Notify(ctx context.Context, userID, message string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("X-Title", "Group Queue")
	req.Header.Set("X-Tags", "musical_note")
	req.Header.Set("X-GroupQueue-User", userID)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected: status %d", resp.StatusCode)
	}
	return nil
}
