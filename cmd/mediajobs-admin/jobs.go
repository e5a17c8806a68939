package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/target/mmk-media-jobs/internal/domain/model"
)

func newJobsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and cancel jobs",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <job-id>",
			Short: "Print a job record as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svcs, err := a.services()
				if err != nil {
					return err
				}
				job, err := svcs.Repos.Jobs.GetByID(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("get job %s: %w", args[0], err)
				}
				return printJSON(cmd, job)
			},
		},
		&cobra.Command{
			Use:   "cancel <job-id>",
			Short: "Cancel a job regardless of owner",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				svcs, err := a.services()
				if err != nil {
					return err
				}
				job, err := svcs.Jobs.CancelByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if job.Status != model.JobStatusCancelled {
					return writef(cmd.OutOrStdout(), "cancel requested for %s job %s; the worker stops at its next heartbeat\n", job.Status, job.ID)
				}
				return writef(cmd.OutOrStdout(), "job %s cancelled\n", job.ID)
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Count jobs per status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				svcs, err := a.services()
				if err != nil {
					return err
				}
				stats, err := svcs.Jobs.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printJobStats(cmd, stats)
			},
		},
	)
	return cmd
}

func printJobStats(cmd *cobra.Command, stats model.JobStats) error {
	statuses := make([]string, 0, len(stats))
	for s := range stats {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	if err := writef(w, "STATUS\tCOUNT\n"); err != nil {
		return err
	}
	for _, s := range statuses {
		if err := writef(w, "%s\t%d\n", s, stats[model.JobStatus(s)]); err != nil {
			return err
		}
	}
	return w.Flush()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
