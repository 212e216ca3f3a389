package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slack-go/slack"

	"github.com/sipeed/slashroute/pkg/audit"
	"github.com/sipeed/slashroute/pkg/commands"
	"github.com/sipeed/slashroute/pkg/config"
	"github.com/sipeed/slashroute/pkg/logger"
	"github.com/sipeed/slashroute/pkg/ratelimit"
	"github.com/sipeed/slashroute/pkg/ssrf"
)

const (
	maxBodyBytes = 1 << 20
	limiterIdle  = 10 * time.Minute
)

// SlashChannel serves Slack slash commands and interaction callbacks over
// HTTP and hands them to a Dispatcher.
type SlashChannel struct {
	config     *config.Config
	dispatcher *commands.Dispatcher
	limiter    *ratelimit.Limiter
	responder  commands.Responder
	trail      *audit.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	running  atomic.Bool
}

type Option func(*SlashChannel)

// WithAudit records rejected requests and blocked follow-ups to l.
func WithAudit(l *audit.Logger) Option {
	return func(c *SlashChannel) { c.trail = l }
}

// WithFollowUpResponder replaces the response_url client handed to handlers.
func WithFollowUpResponder(r commands.Responder) Option {
	return func(c *SlashChannel) { c.responder = r }
}

func NewSlashChannel(cfg *config.Config, d *commands.Dispatcher, opts ...Option) *SlashChannel {
	c := &SlashChannel{
		config:     cfg,
		dispatcher: d,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.responder == nil {
		var guard *ssrf.Guard
		if cfg.FollowUp.Guard {
			gc := ssrf.DefaultConfig()
			gc.RequireHTTPS = cfg.FollowUp.RequireHTTPS
			gc.AllowedHosts = cfg.FollowUp.AllowedHosts
			guard = ssrf.NewGuard(gc)
		}
		timeout := time.Duration(cfg.Server.FollowUpTimeoutSeconds) * time.Second
		c.responder = NewWebhookResponder(timeout, guard, c.trail)
	}
	return c
}

func (c *SlashChannel) IsRunning() bool {
	return c.running.Load()
}

// Addr returns the bound listener address once started.
func (c *SlashChannel) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Handler returns the routing handler for the command and callback routes.
func (c *SlashChannel) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(c.config.Server.CommandRoute, c.handleCommand)
	mux.HandleFunc(c.config.Server.CallbackRoute, c.handleCallback)
	return mux
}

func (c *SlashChannel) Start(ctx context.Context) error {
	logger.InfoC("slack", "Starting slash command channel")

	addr := c.config.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.server, c.listener, c.cancel = server, listener, cancel
	c.mu.Unlock()
	c.running.Store(true)

	if c.config.RateLimit.Enabled {
		go c.sweepLimiter(runCtx)
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("slack", "Slash command server error", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	logger.InfoCF("slack", "Slash command server listening", map[string]any{
		"address":        listener.Addr().String(),
		"command_route":  c.config.Server.CommandRoute,
		"callback_route": c.config.Server.CallbackRoute,
	})
	return nil
}

func (c *SlashChannel) Stop(ctx context.Context) error {
	logger.InfoC("slack", "Stopping slash command channel")

	c.mu.Lock()
	server, cancel := c.server, c.cancel
	c.server, c.listener, c.cancel = nil, nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err = server.Shutdown(shutdownCtx); err != nil {
			logger.ErrorCF("slack", "Slash command server shutdown error", map[string]any{
				"error": err.Error(),
			})
		}
	}

	c.running.Store(false)
	return err
}

// sweepLimiter drops buckets for users idle longer than limiterIdle.
func (c *SlashChannel) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.limiter.Cleanup(limiterIdle); n > 0 {
				logger.DebugCF("slack", "Dropped idle rate limit buckets", map[string]any{
					"count": n,
				})
			}
		}
	}
}

func (c *SlashChannel) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, ok := c.readVerified(w, r)
	if !ok {
		return
	}

	cmd, err := decodeCommand(r, body)
	if err != nil {
		http.Error(w, "Invalid command payload", http.StatusBadRequest)
		return
	}

	// Only authenticated requests are charged against a user's bucket.
	if !c.dispatcher.Authenticate(cmd.Token) {
		c.record(r, audit.Event{Type: audit.EventUnauthorized, UserID: cmd.UserID, TeamID: cmd.TeamID})
		writeError(w, commands.ErrUnauthorized)
		return
	}

	if !c.limiter.AllowRequest(cmd.UserID) {
		logger.WarnCF("slack", "Rate limit exceeded", map[string]any{
			"user_id": cmd.UserID,
		})
		c.record(r, audit.Event{Type: audit.EventRateLimited, UserID: cmd.UserID, TeamID: cmd.TeamID})
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	ctx := commands.WithResponder(r.Context(), c.responder)
	res, err := c.dispatcher.Dispatch(ctx, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeBody(w, res.Body)
}

func (c *SlashChannel) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, ok := c.readVerified(w, r)
	if !ok {
		return
	}

	raw := body
	if isForm(r) {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			http.Error(w, "Invalid form body", http.StatusBadRequest)
			return
		}
		raw = []byte(values.Get("payload"))
	}

	ctx := commands.WithResponder(r.Context(), c.responder)
	res, err := c.dispatcher.HandleCallback(ctx, raw)
	if err != nil {
		if errors.Is(err, commands.ErrUnauthorized) {
			c.record(r, audit.Event{Type: audit.EventUnauthorized, UserID: res.UserID, TeamID: res.TeamID})
		}
		writeError(w, err)
		return
	}
	writeBody(w, res.Body)
}

// readVerified reads the body and checks the request signature when a
// signing secret is configured.
func (c *SlashChannel) readVerified(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return nil, false
		}
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return nil, false
	}

	if secret := c.config.SigningSecret; secret != "" {
		if err := verifySignature(r.Header, body, secret); err != nil {
			logger.WarnCF("slack", "Request signature rejected", map[string]any{
				"error": err.Error(),
			})
			c.record(r, audit.Event{Type: audit.EventSignatureRejected, Detail: err.Error()})
			writeError(w, commands.ErrUnauthorized)
			return nil, false
		}
	}

	return body, true
}

func (c *SlashChannel) record(r *http.Request, ev audit.Event) {
	ev.Route, ev.Source = r.URL.Path, r.RemoteAddr
	if err := c.trail.Record(ev); err != nil {
		logger.ErrorCF("slack", "Failed to write audit event", map[string]any{
			"error": err.Error(),
		})
	}
}

func verifySignature(header http.Header, body []byte, secret string) error {
	sv, err := slack.NewSecretsVerifier(header, secret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}

func decodeCommand(r *http.Request, body []byte) (slack.SlashCommand, error) {
	if mediaType(r) == "application/json" {
		return decodeJSONCommand(body)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return slack.SlashCommandParse(r)
}

// jsonCommand drops slack.SlashCommand's UnmarshalJSON, which rejects
// bodies without is_enterprise_install.
type jsonCommand slack.SlashCommand

func decodeJSONCommand(body []byte) (slack.SlashCommand, error) {
	var cmd jsonCommand
	aux := struct {
		*jsonCommand
		IsEnterpriseInstall any `json:"is_enterprise_install"`
	}{jsonCommand: &cmd}
	if err := json.Unmarshal(body, &aux); err != nil {
		return slack.SlashCommand{}, err
	}

	switch v := aux.IsEnterpriseInstall.(type) {
	case nil:
	case bool:
		cmd.IsEnterpriseInstall = v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return slack.SlashCommand{}, fmt.Errorf("is_enterprise_install: %w", err)
		}
		cmd.IsEnterpriseInstall = b
	default:
		return slack.SlashCommand{}, fmt.Errorf("is_enterprise_install: unexpected %T", v)
	}
	return slack.SlashCommand(cmd), nil
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(strings.TrimSpace(r.Header.Get("Content-Type")))
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

func isForm(r *http.Request) bool {
	return mediaType(r) == "application/x-www-form-urlencoded"
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, commands.ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, commands.ErrMalformedCallback):
		http.Error(w, "Malformed callback payload", http.StatusBadRequest)
	case errors.Is(err, commands.ErrCallbackNotFound):
		http.Error(w, "Callback not found", http.StatusNotFound)
	default:
		logger.ErrorCF("slack", "Request failed", map[string]any{
			"error": err.Error(),
		})
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeBody(w http.ResponseWriter, body any) {
	switch v := body.(type) {
	case nil:
		w.WriteHeader(http.StatusOK)
	case string:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			logger.ErrorCF("slack", "Failed to encode response body", map[string]any{
				"error": err.Error(),
			})
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
