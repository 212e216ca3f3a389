package commands

import (
	"context"
	"strings"

	"github.com/slack-go/slack"
)

const (
	helpPattern     = "help"
	helpDescription = "print this help menu"
)

// FormatHelp renders one "<pattern>: <description>" line per definition, in
// order. An empty slice renders as the empty string.
func FormatHelp(defs []Definition) string {
	var b strings.Builder
	for _, def := range defs {
		b.WriteString(def.Pattern)
		b.WriteString(": ")
		b.WriteString(def.Description)
		b.WriteByte('\n')
	}
	return b.String()
}

// RegisterHelpCommand registers the built-in "help" command, which replies
// with the help text of the registry as it is when invoked.
func (d *Dispatcher) RegisterHelpCommand() {
	d.commands.Register(helpPattern, func(context.Context, slack.SlashCommand, []string) (any, error) {
		return d.commands.Help(), nil
	}, helpDescription)
}
