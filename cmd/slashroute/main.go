// slashroute serves Slack slash commands and interactive callbacks,
// routing each request to the handler whose pattern matches it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/slashroute/cmd/slashroute/internal"
	"github.com/sipeed/slashroute/cmd/slashroute/internal/initcmd"
	"github.com/sipeed/slashroute/cmd/slashroute/internal/routes"
	"github.com/sipeed/slashroute/cmd/slashroute/internal/serve"
	"github.com/sipeed/slashroute/cmd/slashroute/internal/version"
)

func NewSlashrouteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "slashroute",
		Short:         fmt.Sprintf("Slack slash command router v%s", internal.GetVersion()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		initcmd.NewInitCommand(),
		serve.NewServeCommand(),
		routes.NewRoutesCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	if err := NewSlashrouteCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
