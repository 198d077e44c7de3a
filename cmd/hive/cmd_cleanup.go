package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCleanupCmd creates the "hive cleanup" subcommand.
func newCleanupCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove orphaned session records",
		Long:  "Finds session records with no live agent loop behind them,\ndeletes them, and releases their claims.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStores()
			if err != nil {
				return err
			}
			ctrl, cleanup, err := openController(s)
			if err != nil {
				return err
			}
			defer cleanup()

			w := cmd.OutOrStdout()
			orphans, err := ctrl.CheckForOrphanedSessions()
			if err != nil {
				return err
			}
			if len(orphans) == 0 {
				fmt.Fprintln(w, "no orphaned sessions")
				return nil
			}
			for _, rec := range orphans {
				fmt.Fprintf(w, "orphan: agent %d (%s)\n", rec.ID, rec.State)
			}
			if dryRun {
				return nil
			}

			n, err := ctrl.CleanupOrphanedSessions()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "cleaned %d orphaned sessions\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list orphans without deleting")
	return cmd
}
