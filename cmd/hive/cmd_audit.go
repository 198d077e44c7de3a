package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hive/pkg/emergency"
	"hive/pkg/eventlog"
	"hive/pkg/protocol"
)

// newAuditCmd creates the "hive audit" subcommand.
func newAuditCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the emergency action log",
		Long:  "Displays recorded emergency actions, newest first. The log\nkeeps only the most recent 100 entries.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			db, err := eventlog.Open(paths.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			entries, err := emergency.NewAuditLog(db).List(cmd.Context(), tail)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(w, "no emergency actions recorded")
				return nil
			}
			for _, a := range entries {
				result := a.Result
				if a.Result == protocol.ResultFailure {
					result = colorize(w, "31", result)
				}
				fmt.Fprintf(w, "%s | %-26s | %-7s | %s | %s\n",
					eventlog.FormatTime(a.Timestamp), a.Action, result, a.UserID, a.Details)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&tail, "tail", 20, "number of recent actions to show")
	return cmd
}
