package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sipeed/slashroute/pkg/commands"
	"github.com/sipeed/slashroute/pkg/config"
	"github.com/sipeed/slashroute/pkg/logger"
	"github.com/sipeed/slashroute/pkg/observability"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// GetConfigPath honours SLASHROUTE_CONFIG, else ~/.slashroute/config.json.
func GetConfigPath() string {
	if path := os.Getenv("SLASHROUTE_CONFIG"); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".slashroute", "config.json")
}

// LoadConfig loads path (or the default path) and applies its log settings.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = GetConfigPath()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) error {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	logger.SetRedactionEnabled(cfg.Redact)
	if cfg.File != "" {
		return logger.EnableFileLogging(cfg.File)
	}
	return nil
}

// NewDispatcher builds a dispatcher from cfg, registering the built-in help
// command when enabled.
func NewDispatcher(cfg *config.Config, opts ...commands.Option) *commands.Dispatcher {
	base := []commands.Option{
		commands.WithDecoration(cfg.Decoration),
		commands.WithFaultMessage(cfg.FaultMessage),
		commands.WithTracer(observability.Tracer("github.com/sipeed/slashroute")),
	}
	d := commands.NewDispatcher(cfg.Token, append(base, opts...)...)
	if cfg.BuiltinHelp {
		d.RegisterHelpCommand()
	}
	return d
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}
