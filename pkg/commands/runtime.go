package commands

import (
	"context"

	"github.com/slack-go/slack"
)

// Responder posts delayed messages to a Slack response_url.
type Responder interface {
	Respond(ctx context.Context, responseURL string, msg *slack.WebhookMessage) error
}

type responderContextKey struct{}

// WithResponder attaches r to ctx for handlers that reply asynchronously.
func WithResponder(ctx context.Context, r Responder) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, responderContextKey{}, r)
}

func responderFromContext(ctx context.Context) Responder {
	if ctx == nil {
		return nil
	}
	r, _ := ctx.Value(responderContextKey{}).(Responder)
	return r
}

// FollowUp posts msg to responseURL through the Responder carried by ctx.
func FollowUp(ctx context.Context, responseURL string, msg *slack.WebhookMessage) error {
	r := responderFromContext(ctx)
	if r == nil {
		return ErrNoResponder
	}
	return r.Respond(ctx, responseURL, msg)
}
