package commands

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultFaultMessage is returned to the chat client when a handler fails.
const DefaultFaultMessage = "Sorry, something went wrong while running that command."

type Outcome int

const (
	// OutcomeHandled means a handler ran and returned a body.
	OutcomeHandled Outcome = iota
	// OutcomeHelp means nothing matched and the body is the help text.
	OutcomeHelp
	// OutcomeFault means the handler failed; Body is the fault message.
	OutcomeFault
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHandled:
		return "handled"
	case OutcomeHelp:
		return "help"
	case OutcomeFault:
		return "fault"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type Result struct {
	Outcome Outcome
	Pattern string
	Body    any
	Err     error
}

// Dispatcher authenticates requests, resolves them against its registries
// and runs the resolved handler with failures isolated.
type Dispatcher struct {
	token        string
	commands     *Registry
	callbacks    *CallbackRegistry
	matcher      *Matcher
	decoration   string
	faultMessage string
	observer     Observer
	tracer       trace.Tracer
}

type Option func(*Dispatcher)

// WithDecoration prefixes successful command output with decoration.
func WithDecoration(decoration string) Option {
	return func(d *Dispatcher) { d.decoration = decoration }
}

func WithFaultMessage(msg string) Option {
	return func(d *Dispatcher) {
		if msg != "" {
			d.faultMessage = msg
		}
	}
}

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

func WithRegistry(r *Registry) Option {
	return func(d *Dispatcher) { d.commands = r }
}

func WithCallbacks(r *CallbackRegistry) Option {
	return func(d *Dispatcher) { d.callbacks = r }
}

func NewDispatcher(token string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		token:        token,
		matcher:      NewMatcher(),
		faultMessage: DefaultFaultMessage,
		observer:     LogObserver(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.commands == nil {
		d.commands = NewRegistry()
	}
	if d.callbacks == nil {
		d.callbacks = NewCallbackRegistry()
	}
	if d.observer == nil {
		d.observer = ObserverFunc(func(context.Context, Event) {})
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("github.com/sipeed/slashroute/pkg/commands")
	}
	return d
}

func (d *Dispatcher) Commands() *Registry {
	return d.commands
}

func (d *Dispatcher) Callbacks() *CallbackRegistry {
	return d.callbacks
}

func (d *Dispatcher) RegisterCommand(pattern string, handler Handler, description string) {
	d.commands.Register(pattern, handler, description)
}

func (d *Dispatcher) RegisterCallback(id string, handler CallbackHandler) {
	d.callbacks.Register(id, handler)
}

func (d *Dispatcher) Help() string {
	return d.commands.Help()
}

// Authenticate reports whether supplied equals the configured token.
func (d *Dispatcher) Authenticate(supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(d.token)) == 1
}

// Dispatch runs one slash command. The only error it returns is
// ErrUnauthorized; handler failures come back as OutcomeFault.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd slack.SlashCommand) (Result, error) {
	if !d.Authenticate(cmd.Token) {
		return Result{}, ErrUnauthorized
	}

	ctx, span := d.tracer.Start(ctx, "commands.dispatch", trace.WithAttributes(
		attribute.String("slash.command", cmd.Command),
	))
	defer span.End()

	snap := d.commands.snapshot()
	def, match, ok := d.resolve(snap, cmd.Text)
	if !ok {
		span.SetAttributes(attribute.String("slash.outcome", OutcomeHelp.String()))
		return Result{Outcome: OutcomeHelp, Body: FormatHelp(snap.definitions())}, nil
	}
	span.SetAttributes(attribute.String("slash.pattern", def.Pattern))

	start := time.Now()
	body, err := invoke(func() (any, error) {
		return def.Handler(ctx, cmd, match)
	})
	elapsed := time.Since(start)

	if err != nil {
		herr := &HandlerError{Pattern: def.Pattern, Err: err, Panic: isPanic(err)}
		span.RecordError(herr)
		span.SetStatus(codes.Error, "handler failed")
		span.SetAttributes(attribute.String("slash.outcome", OutcomeFault.String()))

		ev := newEvent(EventFault)
		ev.Pattern, ev.Text, ev.Err, ev.Duration = def.Pattern, cmd.Text, herr, elapsed
		d.observer.Observe(ctx, ev)
		return Result{Outcome: OutcomeFault, Pattern: def.Pattern, Body: d.faultMessage, Err: herr}, nil
	}

	span.SetAttributes(attribute.String("slash.outcome", OutcomeHandled.String()))
	ev := newEvent(EventCommand)
	ev.Pattern, ev.Text, ev.Duration = def.Pattern, cmd.Text, elapsed
	d.observer.Observe(ctx, ev)

	return Result{Outcome: OutcomeHandled, Pattern: def.Pattern, Body: d.decorate(body)}, nil
}

func (d *Dispatcher) resolve(snap *snapshot, text string) (Definition, []string, bool) {
	if pattern, match, ok := d.matcher.Match(snap.orderedPatterns(), text); ok {
		def, _ := snap.lookup(pattern)
		return def, match, true
	}
	if def, ok := snap.lookup(Wildcard); ok {
		return def, []string{}, true
	}
	return Definition{}, nil, false
}

func (d *Dispatcher) decorate(body any) any {
	if d.decoration == "" {
		return body
	}
	switch v := body.(type) {
	case string:
		return d.decoration + v
	case *slack.Msg:
		if v == nil {
			return v
		}
		out := *v
		out.Text = d.decoration + v.Text
		return &out
	}
	return body
}

type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("%v", p.value)
}

func isPanic(err error) bool {
	_, ok := err.(panicError)
	return ok
}

// invoke runs call and converts a panic into an error.
func invoke(call func() (any, error)) (body any, err error) {
	defer func() {
		if r := recover(); r != nil {
			body, err = nil, panicError{value: r}
		}
	}()
	return call()
}
