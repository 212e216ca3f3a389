package initcmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/sipeed/slashroute/cmd/slashroute/internal"
	"github.com/sipeed/slashroute/pkg/config"
)

func initCmd(cmd *cobra.Command, configPath string, force bool) error {
	if configPath == "" {
		configPath = internal.GetConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(configPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s\n", configPath)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Set token (or SLASHROUTE_TOKEN) to your Slack verification token")
	fmt.Fprintf(out, "  2. Put handler manifests or scripts in %s\n", cfg.HandlersDir)
	fmt.Fprintln(out, "  3. Run: slashroute serve")
	return nil
}
