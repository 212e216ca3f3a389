package routes

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sipeed/slashroute/cmd/slashroute/internal"
	"github.com/sipeed/slashroute/pkg/commands"
	"github.com/sipeed/slashroute/pkg/loader"
)

func NewRoutesCommand() *cobra.Command {
	var (
		configPath string
		dir        string
	)

	cmd := &cobra.Command{
		Use:     "routes",
		Aliases: []string{"r"},
		Short:   "List the commands and callbacks a handlers directory registers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.HandlersDir
			}

			d := internal.NewDispatcher(cfg, commands.WithObserver(nil))
			sum, err := loader.Load(dir, d)
			defer sum.Close()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, d.Help())
			for _, id := range d.Callbacks().IDs() {
				fmt.Fprintf(out, "callback %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the config file")
	cmd.Flags().StringVar(&dir, "dir", "", "Handlers directory (defaults to handlers_dir from config)")

	return cmd
}
