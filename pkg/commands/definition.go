package commands

import (
	"context"

	"github.com/slack-go/slack"
)

// Wildcard is the reserved fallback pattern. It is never compiled as a
// regular expression and is consulted only after every other pattern failed.
const Wildcard = "*"

// Handler runs a matched command. match holds the submatches of the winning
// pattern (match[0] is the matched text) and is empty for the wildcard.
// The returned value becomes the response body.
type Handler func(ctx context.Context, cmd slack.SlashCommand, match []string) (any, error)

type Definition struct {
	Pattern     string
	Description string
	Handler     Handler
}

// CallbackHandler runs an interactive callback. action and value describe
// the element the user acted on.
type CallbackHandler func(ctx context.Context, cb slack.InteractionCallback, action, value string) (any, error)
