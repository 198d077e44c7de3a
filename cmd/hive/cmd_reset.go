package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// newResetCmd creates the "hive reset" subcommand.
func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <agent-id>",
		Short: "Destructively reset one agent's durable state",
		Long:  "Releases every claim the agent holds and deletes its session\nrecord. Distinct from restart: nothing is preserved.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("agent id must be a number: %q", args[0])
			}

			s, err := openStores()
			if err != nil {
				return err
			}
			ctrl, cleanup, err := openController(s)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := ctrl.ResetAgent(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset agent %d\n", id)
			return nil
		},
	}
}
