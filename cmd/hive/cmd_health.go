package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hive/pkg/eventlog"
	"hive/pkg/loopcheck"
)

// newHealthCmd creates the "hive health" subcommand.
func newHealthCmd() *cobra.Command {
	var agentID int

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Validate loop health",
		Long:  "Aggregates agent counts, queue depth, stuck-agent detection,\nand scheduling recommendations into one report.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStores()
			if err != nil {
				return err
			}
			db, err := eventlog.Open(s.paths.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			v := loopcheck.New(db, s.claims, s.conflicts, s.sessions, nil)
			w := cmd.OutOrStdout()

			if cmd.Flags().Changed("agent") {
				m, err := v.Cycles(cmd.Context(), agentID)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "agent %d: %d cycles, last %s, avg %s, last transition %s\n",
					m.AgentID, m.CyclesCompleted, m.LastCycleDuration, m.AvgCycleDuration, m.LastTransition)
				return nil
			}

			r, err := v.ValidateLoopHealth(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "agents: %d active, %d idle, %d paused\n",
				r.ActiveAgents, r.IdleAgents, r.PausedAgents)
			fmt.Fprintf(w, "queue: depth %d (%d claims, %d conflicts, %d reviews)\n",
				r.QueueDepth, r.ActiveClaims, r.PendingConflicts, r.PendingReviews)
			if len(r.StuckAgents) > 0 {
				fmt.Fprintf(w, "%s: %v\n", colorize(w, "31", "stuck agents"), r.StuckAgents)
			}
			for _, rec := range r.Recommendations {
				fmt.Fprintf(w, "- %s\n", rec)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&agentID, "agent", 0, "show cycle metrics for one agent")
	return cmd
}
