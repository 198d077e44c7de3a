package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"hive/pkg/control"
	"hive/pkg/protocol"
)

// controlSocketPath returns the running serve process's control socket.
func controlSocketPath() (string, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return "", err
	}
	return filepath.Join(paths.HiveDir, protocol.ControlSocketFile), nil
}

// newScaleCmd creates the "hive scale" subcommand.
func newScaleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scale <n>",
		Short: "Set the running pool's desired agent count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("pool size must be a number: %q", args[0])
			}
			sock, err := controlSocketPath()
			if err != nil {
				return err
			}
			ack, err := control.Send(cmd.Context(), sock, protocol.Directive{
				Op: protocol.DirectiveScale,
				N:  n,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ack.Detail)
			return nil
		},
	}
}
