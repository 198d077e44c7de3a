package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"hive/pkg/control"
	"hive/pkg/protocol"
)

// newResumeCmd creates the "hive resume" subcommand.
func newResumeCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "resume [agent-id]",
		Short: "Resume one paused agent or the whole pool",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := protocol.Directive{Op: protocol.DirectiveResume, All: all}
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

	cmd.Flags().BoolVar(&all, "all", false, "resume every live agent")
	return cmd
}
