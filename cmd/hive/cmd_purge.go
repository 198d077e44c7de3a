package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hive/pkg/emergency"
)

// newPurgeCmd creates the "hive purge" subcommand.
func newPurgeCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Force-release every active claim",
		Long:  "Releases all active claims regardless of age. Asks for\nconfirmation unless --yes is passed.",
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

			confirm := promptConfirm(cmd)
			if yes {
				confirm = nil
			}

			n, err := ctrl.PurgeQueue(confirm)
			if errors.Is(err, emergency.ErrCancelled) {
				fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %d claims\n", n)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}
