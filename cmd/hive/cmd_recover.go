package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hive/pkg/emergency"
	"hive/pkg/eventlog"
)

// openController builds an emergency controller over durable state with
// an offline pool. Commands that run while serve is up still act
// correctly: claims and sessions are shared through the filesystem.
func openController(s *stores) (*emergency.Controller, func(), error) {
	db, err := eventlog.Open(s.paths.DBPath)
	if err != nil {
		return nil, nil, err
	}
	ctrl := emergency.NewController(offlinePool{}, s.claims, s.sessions, emergency.NewAuditLog(db))
	return ctrl, func() { _ = db.Close() }, nil
}

// newRecoverCmd creates the "hive recover" subcommand.
func newRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Release stale claims back to the backlog",
		Long:  "Scans active claims and force-releases any older than the\nstaleness threshold, leaving fresh claims untouched.",
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

			report, err := ctrl.RecoverStale()
			if err != nil {
				return err
			}
			if report.Recovered == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no stale claims")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recovered %d stale claims (issues %v)\n",
				report.Recovered, report.IssueNumbers)
			return nil
		},
	}
}
