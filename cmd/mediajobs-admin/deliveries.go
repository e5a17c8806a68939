package main

import (
	"github.com/spf13/cobra"
)

func newDeliveriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "Operate on recorded webhook deliveries",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "replay <delivery-id>",
		Short: "Schedule one more attempt of a recorded delivery with its original payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svcs, err := a.services()
			if err != nil {
				return err
			}
			task, err := svcs.Dispatcher.Redeliver(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writef(cmd.OutOrStdout(), "scheduled delivery %s to %s (attempt %d)\n", task.DeliveryID, task.TargetURL, task.Attempt)
		},
	})
	return cmd
}
