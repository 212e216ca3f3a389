package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CallbackRegistry maps callback ids to handlers by exact match.
type CallbackRegistry struct {
	mu       sync.RWMutex
	handlers map[string]CallbackHandler
}

func NewCallbackRegistry() *CallbackRegistry {
	return &CallbackRegistry{handlers: make(map[string]CallbackHandler)}
}

func (r *CallbackRegistry) Register(id string, handler CallbackHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[id] = handler
}

func (r *CallbackRegistry) Lookup(id string) (CallbackHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	return h, ok
}

// IDs returns the registered callback ids, sorted.
func (r *CallbackRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type CallbackResult struct {
	Outcome    Outcome
	CallbackID string
	Action     string
	Value      string
	UserID     string
	TeamID     string
	Body       any
	Err        error
}

type envelope struct {
	Payload *string `json:"payload"`
}

// ParseCallback decodes an interaction payload. raw may be the payload
// object itself, a JSON string holding it, or an object whose "payload"
// field holds it as a string.
func ParseCallback(raw []byte) (slack.InteractionCallback, error) {
	var cb slack.InteractionCallback

	data := bytes.TrimSpace(raw)
	for depth := 0; depth < 3; depth++ {
		if len(data) == 0 {
			return cb, fmt.Errorf("%w: empty payload", ErrMalformedCallback)
		}
		switch data[0] {
		case '"':
			var inner string
			if err := json.Unmarshal(data, &inner); err != nil {
				return cb, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
			}
			data = bytes.TrimSpace([]byte(inner))
			continue
		case '{':
			var env envelope
			if err := json.Unmarshal(data, &env); err == nil && env.Payload != nil {
				data = bytes.TrimSpace([]byte(*env.Payload))
				continue
			}
			if err := json.Unmarshal(data, &cb); err != nil {
				return cb, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
			}
			return cb, nil
		default:
			return cb, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedCallback)
		}
	}
	return cb, fmt.Errorf("%w: payload nested too deeply", ErrMalformedCallback)
}

// ActingElement returns the name and value of the element the user acted
// on: the first attachment action, else the first block action. The value
// is the first selected option, else the element's own value (buttons),
// else empty.
func ActingElement(cb slack.InteractionCallback) (string, string) {
	if actions := cb.ActionCallback.AttachmentActions; len(actions) > 0 && actions[0] != nil {
		a := actions[0]
		if len(a.SelectedOptions) > 0 {
			return a.Name, a.SelectedOptions[0].Value
		}
		return a.Name, a.Value
	}
	if actions := cb.ActionCallback.BlockActions; len(actions) > 0 && actions[0] != nil {
		a := actions[0]
		if a.SelectedOption.Value != "" {
			return a.ActionID, a.SelectedOption.Value
		}
		if len(a.SelectedOptions) > 0 {
			return a.ActionID, a.SelectedOptions[0].Value
		}
		return a.ActionID, a.Value
	}
	return "", ""
}

// HandleCallback decodes, authenticates and dispatches one interaction.
// Errors are ErrMalformedCallback, ErrUnauthorized or ErrCallbackNotFound;
// handler failures come back as OutcomeFault.
func (d *Dispatcher) HandleCallback(ctx context.Context, raw []byte) (CallbackResult, error) {
	cb, err := ParseCallback(raw)
	if err != nil {
		return CallbackResult{}, err
	}
	res := CallbackResult{CallbackID: cb.CallbackID, UserID: cb.User.ID, TeamID: cb.Team.ID}
	if !d.Authenticate(cb.Token) {
		return res, ErrUnauthorized
	}

	handler, ok := d.callbacks.Lookup(cb.CallbackID)
	if !ok {
		return res, fmt.Errorf("%w: %q", ErrCallbackNotFound, cb.CallbackID)
	}

	action, value := ActingElement(cb)
	res.Action, res.Value = action, value

	ctx, span := d.tracer.Start(ctx, "commands.callback", trace.WithAttributes(
		attribute.String("slash.callback_id", cb.CallbackID),
		attribute.String("slash.action", action),
	))
	defer span.End()

	start := time.Now()
	body, err := invoke(func() (any, error) {
		return handler(ctx, cb, action, value)
	})
	elapsed := time.Since(start)

	if err != nil {
		herr := &HandlerError{CallbackID: cb.CallbackID, Err: err, Panic: isPanic(err)}
		span.RecordError(herr)
		span.SetStatus(codes.Error, "handler failed")

		ev := newEvent(EventFault)
		ev.CallbackID, ev.Action, ev.Value, ev.Err, ev.Duration = cb.CallbackID, action, value, herr, elapsed
		d.observer.Observe(ctx, ev)

		res.Outcome, res.Body, res.Err = OutcomeFault, d.faultMessage, herr
		return res, nil
	}

	ev := newEvent(EventCallback)
	ev.CallbackID, ev.Action, ev.Value, ev.Duration = cb.CallbackID, action, value, elapsed
	d.observer.Observe(ctx, ev)

	res.Outcome, res.Body = OutcomeHandled, body
	return res, nil
}
