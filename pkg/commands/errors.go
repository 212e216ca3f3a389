package commands

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the request token does not match.
	// It carries no detail about why the token was rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrCallbackNotFound is returned when no handler is registered for a
	// callback id.
	ErrCallbackNotFound = errors.New("callback not found")

	// ErrMalformedCallback is returned when a callback envelope cannot be
	// decoded.
	ErrMalformedCallback = errors.New("malformed callback payload")

	// ErrNoResponder is returned by FollowUp when the context carries no
	// Responder.
	ErrNoResponder = errors.New("no follow-up responder in context")
)

// HandlerError records a failed handler invocation. Exactly one of Pattern
// and CallbackID is set.
type HandlerError struct {
	Pattern    string
	CallbackID string
	Err        error
	Panic      bool
}

func (e *HandlerError) Error() string {
	target := "sub-command " + e.Pattern
	if e.CallbackID != "" {
		target = "callback " + e.CallbackID
	}
	if e.Panic {
		return fmt.Sprintf("the %s panicked: %v", target, e.Err)
	}
	return fmt.Sprintf("the %s had an error: %v", target, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
