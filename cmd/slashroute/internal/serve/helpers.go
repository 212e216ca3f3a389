package serve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/sipeed/slashroute/cmd/slashroute/internal"
	"github.com/sipeed/slashroute/pkg/audit"
	"github.com/sipeed/slashroute/pkg/channels"
	"github.com/sipeed/slashroute/pkg/commands"
	"github.com/sipeed/slashroute/pkg/config"
	"github.com/sipeed/slashroute/pkg/loader"
	"github.com/sipeed/slashroute/pkg/logger"
	"github.com/sipeed/slashroute/pkg/observability"
)

func serveCmd(ctx context.Context, configPath string, debug bool) error {
	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if debug {
		logger.SetLevel(logger.DEBUG)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.Init(ctx, cfg.Observability)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.WarnCF("serve", "Tracer shutdown failed", map[string]any{"error": err.Error()})
		}
	}()

	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.channel.Start(ctx); err != nil {
		return err
	}
	logger.InfoCF("serve", "Ready", map[string]any{
		"version":   internal.FormatVersion(),
		"commands":  len(a.handlers.Commands),
		"callbacks": len(a.handlers.Callbacks),
		"audit":     cfg.Audit.Enabled,
	})

	<-ctx.Done()
	return a.channel.Stop(context.Background())
}

type app struct {
	channel  *channels.SlashChannel
	handlers loader.Summary
	trail    *audit.Logger
}

func (a *app) Close() {
	a.handlers.Close()
	if err := a.trail.Close(); err != nil {
		logger.WarnCF("serve", "Audit log close failed", map[string]any{"error": err.Error()})
	}
}

// build wires the dispatcher, handler directory, audit trail and HTTP
// channel from cfg. A missing handlers directory is not an error.
func build(cfg *config.Config) (*app, error) {
	d := internal.NewDispatcher(cfg)

	sum, err := loadHandlers(cfg.HandlersDir, d)
	if err != nil {
		return nil, err
	}

	trail, err := audit.Open(audit.Config{
		Enabled: cfg.Audit.Enabled,
		Path:    cfg.Audit.File,
		Key:     []byte(cfg.Audit.Key),
	})
	if err != nil {
		sum.Close()
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	return &app{
		channel:  channels.NewSlashChannel(cfg, d, channels.WithAudit(trail)),
		handlers: sum,
		trail:    trail,
	}, nil
}

func loadHandlers(dir string, d *commands.Dispatcher) (loader.Summary, error) {
	if dir == "" {
		return loader.Summary{}, nil
	}
	sum, err := loader.Load(dir, d)
	if errors.Is(err, fs.ErrNotExist) {
		logger.WarnCF("serve", "Handlers directory not found", map[string]any{"dir": dir})
		return loader.Summary{}, nil
	}
	if err != nil {
		sum.Close()
		return loader.Summary{}, err
	}
	return sum, nil
}
