package main

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSlashrouteCommand(t *testing.T) {
	cmd := NewSlashrouteCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "slashroute", cmd.Use)
	assert.Contains(t, cmd.Short, "Slack slash command router")
	assert.True(t, cmd.SilenceUsage)

	allowed := []string{"init", "serve", "routes", "version"}
	subs := cmd.Commands()
	assert.Len(t, subs, len(allowed))
	for _, sub := range subs {
		assert.True(t, slices.Contains(allowed, sub.Name()), "unexpected subcommand %q", sub.Name())
		assert.False(t, sub.Hidden)
	}
}
