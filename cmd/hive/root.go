package main

import (
	"fmt"

	"hive/internal/appversion"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root hive command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hive",
		Short:         "Hive agent pool coordinator",
		Long:          "hive coordinates a pool of autonomous worker agents pulling\nissues from a shared backlog, with claims, conflicts, and recovery.",
		Version:       fmt.Sprintf("hive %s", appversion.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newInitCmd(),
		newServeCmd(),
		newStatusCmd(),
		newClaimsCmd(),
		newConflictsCmd(),
		newLogsCmd(),
		newAuditCmd(),
		newHealthCmd(),
		newScaleCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newRecoverCmd(),
		newPurgeCmd(),
		newResetCmd(),
		newCleanupCmd(),
	)

	return cmd
}
