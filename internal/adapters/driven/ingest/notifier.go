package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/custodia-labs/deltasync/internal/core/domain"
	"github.com/custodia-labs/deltasync/internal/core/ports/driven"
)

// Ensure Notifier implements the interface.
var _ driven.Notifier = (*Notifier)(nil)

// DefaultNotifyTimeout bounds a notification request.
const DefaultNotifyTimeout = 60 * time.Second

// NotifierConfig holds configuration for the notifier.
type NotifierConfig struct {
	// URL is the notification endpoint. Empty disables notifications.
	URL           string
	Authorization string
	Timeout       time.Duration
}

// Notifier posts {"message": ...} JSON to the notification endpoint.
type Notifier struct {
	client *http.Client
	url    string
	auth   string
	log    logrus.FieldLogger
}

// NewNotifier creates a notifier.
func NewNotifier(cfg NotifierConfig, log logrus.FieldLogger) *Notifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultNotifyTimeout
	}
	return &Notifier{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL,
		auth:   cfg.Authorization,
		log:    log.WithField("component", "notifier"),
	}
}

// Enabled reports whether a notification endpoint is configured.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// Notify posts the message. It is a no-op when no endpoint is configured.
func (n *Notifier) Notify(ctx context.Context, message string) error {
	if !n.Enabled() {
		n.log.WithField("message", message).Debug("notifications disabled")
		return nil
	}

	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.auth != "" {
		req.Header.Set("Authorization", n.auth)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return &domain.TransientNetworkError{Op: "notify", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("notify: status %d: %s: %w", resp.StatusCode, body, domain.ErrNotificationFailed)
	}
	return nil
}
