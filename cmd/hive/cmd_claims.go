package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newClaimsCmd creates the "hive claims" subcommand.
func newClaimsCmd() *cobra.Command {
	var agentID int

	cmd := &cobra.Command{
		Use:   "claims",
		Short: "List active claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStores()
			if err != nil {
				return err
			}

			claims, err := s.claims.ListActive()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("agent") {
				claims, err = s.claims.ListByAgent(agentID)
				if err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			if len(claims) == 0 {
				fmt.Fprintln(w, "no active claims")
				return nil
			}
			now := time.Now()
			for _, c := range claims {
				age := now.Sub(c.ClaimedAt).Round(time.Minute)
				line := fmt.Sprintf("%-10s agent=%d age=%s", c.Key(), c.AgentID, age)
				if c.Stale(now) {
					line += " " + colorize(w, "31", "STALE")
				}
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&agentID, "agent", 0, "filter by holding agent id")
	return cmd
}
