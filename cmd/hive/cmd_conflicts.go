package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hive/pkg/protocol"
)

// newConflictsCmd creates the "hive conflicts" subcommand and its
// resolve/clear actions.
func newConflictsCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List and manage the conflict queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStores()
			if err != nil {
				return err
			}

			var conflicts []protocol.Conflict
			if status != "" {
				cs := protocol.ConflictStatus(status)
				if !cs.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
				conflicts, err = s.conflicts.ListByStatus(cs)
			} else {
				conflicts, err = s.conflicts.ListAll()
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(conflicts) == 0 {
				fmt.Fprintln(w, "no conflicts")
				return nil
			}
			for _, c := range conflicts {
				fmt.Fprintf(w, "%s  %d-%d agent=%d %s branch=%s files=%s\n",
					c.ID, c.ProjectNumber, c.IssueNumber, c.AgentID,
					colorize(w, "33", string(c.Status)), c.BranchName,
					strings.Join(c.ConflictingFiles, ","))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, resolving, resolved)")

	cmd.AddCommand(
		newConflictsResolveCmd(),
		newConflictsClearCmd(),
	)
	return cmd
}

// newConflictsResolveCmd creates "hive conflicts resolve <id> <status>".
func newConflictsResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id> <status>",
		Short: "Update one conflict's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStores()
			if err != nil {
				return err
			}
			status := protocol.ConflictStatus(args[1])
			if !status.Valid() {
				return fmt.Errorf("unknown status %q", args[1])
			}
			if err := s.conflicts.UpdateStatus(args[0], status); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", args[0], status)
			return nil
		},
	}
}

// newConflictsClearCmd creates "hive conflicts clear".
func newConflictsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every resolved conflict",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStores()
			if err != nil {
				return err
			}
			n, err := s.conflicts.ClearResolved()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d resolved conflicts\n", n)
			return nil
		},
	}
}
