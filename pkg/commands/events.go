package commands

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sipeed/slashroute/pkg/logger"
)

type EventKind string

const (
	EventCommand  EventKind = "command"
	EventCallback EventKind = "callback"
	EventFault    EventKind = "fault"
)

// Event is emitted after every handler invocation.
type Event struct {
	ID         string
	Kind       EventKind
	Pattern    string
	CallbackID string
	Text       string
	Action     string
	Value      string
	Err        error
	Duration   time.Duration
}

type Observer interface {
	Observe(ctx context.Context, ev Event)
}

type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Observers fans an event out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	return ObserverFunc(func(ctx context.Context, ev Event) {
		for _, o := range obs {
			if o != nil {
				o.Observe(ctx, ev)
			}
		}
	})
}

type logObserver struct{}

// LogObserver writes events to the process logger.
func LogObserver() Observer {
	return logObserver{}
}

func (logObserver) Observe(_ context.Context, ev Event) {
	fields := map[string]any{
		"event_id":    ev.ID,
		"duration_ms": ev.Duration.Milliseconds(),
	}

	switch ev.Kind {
	case EventCommand:
		fields["pattern"] = ev.Pattern
		fields["text"] = ev.Text
		logger.InfoCF("commands", "Executing sub-command "+ev.Pattern, fields)
	case EventCallback:
		fields["callback_id"] = ev.CallbackID
		fields["action"] = ev.Action
		fields["value"] = ev.Value
		logger.InfoCF("commands", "Handled callback "+ev.CallbackID, fields)
	case EventFault:
		if ev.Err != nil {
			fields["error"] = ev.Err.Error()
		}
		if ev.CallbackID != "" {
			fields["callback_id"] = ev.CallbackID
			fields["action"] = ev.Action
			logger.ErrorCF("commands", "the callback "+ev.CallbackID+" had an error", fields)
			return
		}
		fields["pattern"] = ev.Pattern
		fields["text"] = ev.Text
		logger.ErrorCF("commands", "the sub-command "+ev.Pattern+" had an error", fields)
	}
}

func newEvent(kind EventKind) Event {
	return Event{ID: uuid.NewString(), Kind: kind}
}
