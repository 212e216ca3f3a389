package internal

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/slashroute/pkg/commands"
	"github.com/sipeed/slashroute/pkg/config"
	"github.com/sipeed/slashroute/pkg/logger"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("HOME", "/tmp/home")
	t.Setenv("SLASHROUTE_CONFIG", "")

	assert.Equal(t, filepath.Join("/tmp/home", ".slashroute", "config.json"), GetConfigPath())

	t.Setenv("SLASHROUTE_CONFIG", "/etc/slashroute.json")
	assert.Equal(t, "/etc/slashroute.json", GetConfigPath())
}

func TestLoadConfig_AppliesLogLevel(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SLASHROUTE_LOG_LEVEL", "debug")
	t.Cleanup(func() { logger.SetLevel(logger.INFO) })

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, logger.DEBUG, logger.GetLevel())
}

func TestLoadConfig_RejectsUnknownLevel(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SLASHROUTE_LOG_LEVEL", "chatty")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestNewDispatcher(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Token = "a token"
	cfg.Decoration = "> "

	d := NewDispatcher(cfg, commands.WithObserver(nil))
	assert.Equal(t, "help: print this help menu\n", d.Help())

	d.RegisterCommand("ls", func(context.Context, slack.SlashCommand, []string) (any, error) {
		return "hello", nil
	}, "")
	res, err := d.Dispatch(context.Background(), slack.SlashCommand{Token: "a token", Text: "ls"})
	require.NoError(t, err)
	assert.Equal(t, "> hello", res.Body)

	cfg.BuiltinHelp = false
	assert.Equal(t, "", NewDispatcher(cfg).Help())
}

func TestFormatVersion(t *testing.T) {
	oldVersion, oldGit := version, gitCommit
	t.Cleanup(func() {
		version, gitCommit = oldVersion, oldGit
	})

	version, gitCommit = "1.2.3", ""
	assert.Equal(t, "1.2.3", FormatVersion())

	gitCommit = "abc123"
	assert.Equal(t, "1.2.3 (git: abc123)", FormatVersion())
	assert.Equal(t, "1.2.3", GetVersion())
}

func TestFormatBuildInfo(t *testing.T) {
	oldBuildTime, oldGoVersion := buildTime, goVersion
	t.Cleanup(func() {
		buildTime, goVersion = oldBuildTime, oldGoVersion
	})

	buildTime, goVersion = "2026-02-20T00:00:00Z", "go1.23.0"
	build, goVer := FormatBuildInfo()
	assert.Equal(t, buildTime, build)
	assert.Equal(t, goVersion, goVer)

	buildTime, goVersion = "", ""
	build, goVer = FormatBuildInfo()
	assert.Empty(t, build)
	assert.Equal(t, runtime.Version(), goVer)
}
