package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const configTemplate = `# hive configuration
instances: 3
# executor: ./scripts/run-item.sh
# notify:
#   addr: ":7433"
#   key: "change-me"
`

// newInitCmd creates the "hive init" subcommand.
func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the .hive directory and default config",
		Long:  "Creates .hive/ with the session directory, the backlog\ndirectory, and a commented config.yaml.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}

			for _, dir := range []string{paths.HiveDir, paths.SessionDir, paths.BacklogDir} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", dir, err)
				}
			}

			if _, err := os.Stat(paths.ConfigPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", paths.ConfigPath)
			}
			if err := os.WriteFile(paths.ConfigPath, []byte(configTemplate), 0o644); err != nil {
				return fmt.Errorf("write config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", paths.HiveDir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config.yaml")
	return cmd
}
