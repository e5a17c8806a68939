package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/target/mmk-media-jobs/internal/devseed"
)

func newDevSeedCmd(a *app) *cobra.Command {
	var opts devseed.Options
	cmd := &cobra.Command{
		Use:   "dev-seed",
		Short: "Load a demo webhook and one sample job per media type",
		Long:  "Seeds a development environment. Refuses to run unless DEV=true.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if !cfg.IsDev {
				return errors.New("dev-seed requires DEV=true")
			}
			svcs, err := a.services()
			if err != nil {
				return err
			}
			opts.Logger = a.logger
			res, err := devseed.Run(cmd.Context(), svcs.Jobs, svcs.Webhooks, opts)
			if res != nil {
				if res.SigningSecret != "" {
					if werr := writef(cmd.OutOrStdout(), "webhook %s signing secret: %s\n", res.WebhookID, res.SigningSecret); werr != nil {
						return werr
					}
				}
				for _, job := range res.Jobs {
					if werr := writef(cmd.OutOrStdout(), "%s\t%s\t%s\n", job.ID, job.Type, job.Status); werr != nil {
						return werr
					}
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&opts.OwnerID, "owner", devseed.DefaultOwnerID, "owner id for seeded records")
	cmd.Flags().StringVar(&opts.WebhookURL, "webhook-url", "", "register a webhook for this target (skipped when empty)")
	return cmd
}
