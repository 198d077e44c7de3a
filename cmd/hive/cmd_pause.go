package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"hive/pkg/control"
	"hive/pkg/protocol"
)

// newPauseCmd creates the "hive pause" subcommand.
func newPauseCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "pause [agent-id]",
		Short: "Pause one agent or the whole pool",
		Long:  "Pauses agents in the running pool. A paused agent finishes its\ncurrent suspension-point check and then holds until resumed.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := protocol.Directive{Op: protocol.DirectivePause, All: all}
			if !all {
				if len(args) != 1 {
					return fmt.Errorf("an agent id is required unless --all is set")
				}
				id, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("agent id must be a number: %q", args[0])
				}
				d.AgentID = id
			}

			sock, err := controlSocketPath()
			if err != nil {
				return err
			}
			ack, err := control.Send(cmd.Context(), sock, d)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ack.Detail)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "pause every live agent")
	return cmd
}
