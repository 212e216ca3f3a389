package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Host                   string `json:"host" env:"SLASHROUTE_HOST"`
	Port                   int    `json:"port" env:"SLASHROUTE_PORT"`
	CommandRoute           string `json:"command_route" env:"SLASHROUTE_COMMAND_ROUTE"`
	CallbackRoute          string `json:"callback_route" env:"SLASHROUTE_CALLBACK_ROUTE"`
	FollowUpTimeoutSeconds int    `json:"followup_timeout_seconds" env:"SLASHROUTE_FOLLOWUP_TIMEOUT"`
}

type RateLimitConfig struct {
	Enabled           bool `json:"enabled" env:"SLASHROUTE_RATE_LIMIT_ENABLED"`
	RequestsPerMinute int  `json:"requests_per_minute" env:"SLASHROUTE_RATE_LIMIT_RPM"`
	Burst             int  `json:"burst" env:"SLASHROUTE_RATE_LIMIT_BURST"`
}

type LogConfig struct {
	Level  string `json:"level" env:"SLASHROUTE_LOG_LEVEL"`
	File   string `json:"file" env:"SLASHROUTE_LOG_FILE"`
	Redact bool   `json:"redact" env:"SLASHROUTE_LOG_REDACT"`
}

type ObservabilityConfig struct {
	Enabled      bool    `json:"enabled" env:"SLASHROUTE_OTEL_ENABLED"`
	OTLPEndpoint string  `json:"otlp_endpoint" env:"SLASHROUTE_OTEL_ENDPOINT"`
	Insecure     bool    `json:"insecure" env:"SLASHROUTE_OTEL_INSECURE"`
	SampleRatio  float64 `json:"sample_ratio" env:"SLASHROUTE_OTEL_SAMPLE_RATIO"`
	ServiceName  string  `json:"service_name" env:"SLASHROUTE_OTEL_SERVICE_NAME"`
}

type FollowUpConfig struct {
	Guard        bool     `json:"guard" env:"SLASHROUTE_FOLLOWUP_GUARD"`
	RequireHTTPS bool     `json:"require_https" env:"SLASHROUTE_FOLLOWUP_REQUIRE_HTTPS"`
	AllowedHosts []string `json:"allowed_hosts" env:"SLASHROUTE_FOLLOWUP_ALLOWED_HOSTS" envSeparator:","`
}

type AuditConfig struct {
	Enabled bool   `json:"enabled" env:"SLASHROUTE_AUDIT_ENABLED"`
	File    string `json:"file" env:"SLASHROUTE_AUDIT_FILE"`
	Key     string `json:"key,omitempty" env:"SLASHROUTE_AUDIT_KEY"`
}

type Config struct {
	// Token is the verification token Slack sends with every request.
	Token         string `json:"token" env:"SLASHROUTE_TOKEN"`
	SigningSecret string `json:"signing_secret,omitempty" env:"SLASHROUTE_SIGNING_SECRET"`
	// Decoration is prefixed to successful handler output.
	Decoration    string              `json:"decoration,omitempty" env:"SLASHROUTE_DECORATION"`
	FaultMessage  string              `json:"fault_message,omitempty" env:"SLASHROUTE_FAULT_MESSAGE"`
	BuiltinHelp   bool                `json:"builtin_help" env:"SLASHROUTE_BUILTIN_HELP"`
	HandlersDir   string              `json:"handlers_dir" env:"SLASHROUTE_HANDLERS_DIR"`
	Server        ServerConfig        `json:"server"`
	RateLimit     RateLimitConfig     `json:"rate_limit"`
	FollowUp      FollowUpConfig      `json:"followup"`
	Audit         AuditConfig         `json:"audit"`
	Log           LogConfig           `json:"log"`
	Observability ObservabilityConfig `json:"observability"`
}

func DefaultConfig() *Config {
	return &Config{
		BuiltinHelp: true,
		HandlersDir: "handlers",
		Server: ServerConfig{
			Host:                   "127.0.0.1",
			Port:                   18795,
			CommandRoute:           "/",
			CallbackRoute:          "/callback",
			FollowUpTimeoutSeconds: 10,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 60,
			Burst:             10,
		},
		FollowUp: FollowUpConfig{
			Guard:        true,
			RequireHTTPS: true,
			AllowedHosts: []string{"slack.com"},
		},
		Log: LogConfig{
			Level:  "info",
			Redact: true,
		},
		Observability: ObservabilityConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  0.1,
			ServiceName:  "slashroute",
		},
	}
}

// LoadConfig reads path (a missing file yields the defaults), then applies
// variables from an optional .env file and the process environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate reports configuration the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Token) == "" {
		errs = append(errs, errors.New("token is required"))
	}
	cmd, cb := c.Server.CommandRoute, c.Server.CallbackRoute
	if !strings.HasPrefix(cmd, "/") {
		errs = append(errs, fmt.Errorf("command route %q must start with /", cmd))
	}
	if !strings.HasPrefix(cb, "/") {
		errs = append(errs, fmt.Errorf("callback route %q must start with /", cb))
	}
	if cmd == cb {
		errs = append(errs, fmt.Errorf("command and callback routes must differ: both are %q", cmd))
	}
	if c.Audit.Enabled && strings.TrimSpace(c.Audit.File) == "" {
		errs = append(errs, errors.New("audit file is required when audit is enabled"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	return errors.Join(errs...)
}

// Addr returns the host:port the HTTP channel listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
