package routes

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoutesCommand(t *testing.T) {
	cmd := NewRoutesCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "routes", cmd.Use)
	assert.Len(t, cmd.Aliases, 1)
	assert.True(t, cmd.HasAlias("r"))

	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)

	assert.NotNil(t, cmd.Flags().Lookup("config"))
	assert.NotNil(t, cmd.Flags().Lookup("dir"))
}

func TestRoutesCommand_PrintsHelpAndCallbacks(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"),
		[]byte("expression: ls\ndescription: prints a list of your stuff\nreply: x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.lua"),
		[]byte("callback_id = \"callback_1\"\nfunction handler() return \"ok\" end\n"), 0o644))

	cmd := NewRoutesCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.json"), "--dir", dir})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "help: print this help menu\nls: prints a list of your stuff\ncallback callback_1\n", out.String())
}

func TestRoutesCommand_MissingDir(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd := NewRoutesCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.json"), "--dir", filepath.Join(t.TempDir(), "absent")})

	assert.Error(t, cmd.Execute())
}
