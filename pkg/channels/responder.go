package channels

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/slack-go/slack"

	"github.com/sipeed/slashroute/pkg/audit"
	"github.com/sipeed/slashroute/pkg/logger"
	"github.com/sipeed/slashroute/pkg/ssrf"
)

const defaultFollowUpTimeout = 10 * time.Second

// WebhookResponder posts delayed replies to a command's response_url.
type WebhookResponder struct {
	httpClient *http.Client
	guard      *ssrf.Guard
	trail      *audit.Logger
}

// NewWebhookResponder builds a responder. A nil guard posts to any URL; a
// nil trail records nothing.
func NewWebhookResponder(timeout time.Duration, guard *ssrf.Guard, trail *audit.Logger) *WebhookResponder {
	if timeout <= 0 {
		timeout = defaultFollowUpTimeout
	}
	return &WebhookResponder{
		httpClient: &http.Client{Timeout: timeout},
		guard:      guard,
		trail:      trail,
	}
}

func (r *WebhookResponder) Respond(ctx context.Context, responseURL string, msg *slack.WebhookMessage) error {
	if responseURL == "" {
		return errors.New("follow-up requires a response_url")
	}
	if msg == nil {
		return errors.New("follow-up requires a message")
	}

	if err := r.guard.CheckURL(ctx, responseURL); err != nil {
		logger.WarnCF("slack", "Follow-up destination rejected", map[string]any{
			"response_url": responseURL,
			"error":        err.Error(),
		})
		detail := err.Error()
		var guardErr *ssrf.Error
		if errors.As(err, &guardErr) {
			detail = guardErr.Reason
		}
		if aerr := r.trail.Record(audit.Event{Type: audit.EventFollowUpBlocked, Detail: detail}); aerr != nil {
			logger.ErrorCF("slack", "Failed to write audit event", map[string]any{"error": aerr.Error()})
		}
		return err
	}

	if err := slack.PostWebhookCustomHTTPContext(ctx, responseURL, r.httpClient, msg); err != nil {
		logger.WarnCF("slack", "Follow-up delivery failed", map[string]any{
			"response_url": responseURL,
			"error":        err.Error(),
		})
		return err
	}

	logger.DebugCF("slack", "Delivered follow-up", map[string]any{
		"response_url": responseURL,
	})
	return nil
}
