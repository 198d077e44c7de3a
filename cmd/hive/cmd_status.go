package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hive/pkg/budget"
	"hive/pkg/protocol"
)

// newStatusCmd creates the "hive status" subcommand.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show agent, claim, and budget state",
		Long:  "Displays per-agent session records, active claims, pending\nconflicts, and the budget snapshot, read from durable state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStores()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			records, err := s.sessions.List()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(w, "no agents recorded")
			}
			for _, rec := range records {
				state := colorize(w, stateColor(rec.State), string(rec.State))
				fmt.Fprintf(w, "agent %d  %-10s tasks=%d", rec.ID, state, rec.TasksCompleted)
				if rec.Phase != "" {
					fmt.Fprintf(w, "  %s", rec.Phase)
				}
				if rec.ErrorCount > 0 {
					fmt.Fprintf(w, "  errors=%d last=%q", rec.ErrorCount, rec.LastError)
				}
				fmt.Fprintln(w)
			}

			claims, err := s.claims.ListActive()
			if err != nil {
				return err
			}
			pending, err := s.conflicts.ListByStatus(protocol.ConflictPending)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "claims: %d active", len(claims))
			stale, err := s.claims.ListStale()
			if err != nil {
				return err
			}
			if len(stale) > 0 {
				fmt.Fprintf(w, " (%s)", colorize(w, "31", fmt.Sprintf("%d stale", len(stale))))
			}
			fmt.Fprintf(w, ", conflicts: %d pending\n", len(pending))

			status, err := budget.NewTracker(s.paths.HiveDir).Status()
			if err != nil {
				return err
			}
			within := "within budget"
			if !status.WithinBudget {
				within = colorize(w, "31", "OVER BUDGET")
			}
			fmt.Fprintf(w, "budget: daily %.2f/%.2f, monthly %.2f/%.2f (%s)\n",
				status.DailySpend, status.DailyLimit,
				status.MonthlySpend, status.MonthlyLimit, within)
			return nil
		},
	}
}
