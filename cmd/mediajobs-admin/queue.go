package main

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/target/mmk-media-jobs/internal/bootstrap"
	"github.com/target/mmk-media-jobs/internal/core"
)

const (
	queueJobs     = "jobs"
	queueWebhooks = "webhooks"
)

var deadColor = color.New(color.FgRed, color.Bold)

// brokers returns the named brokers in display order; "all" selects both.
func (a *app) brokers(name string) ([]core.Broker, error) {
	client, err := a.redisClient()
	if err != nil {
		return nil, err
	}
	jobs, hooks, err := bootstrap.BuildBrokers(client, a.logger)
	if err != nil {
		return nil, err
	}
	switch name {
	case queueJobs:
		return []core.Broker{jobs}, nil
	case queueWebhooks:
		return []core.Broker{hooks}, nil
	case "all":
		return []core.Broker{jobs, hooks}, nil
	default:
		return nil, fmt.Errorf("%w: unknown queue %q (valid options: jobs, webhooks)", errUsage, name)
	}
}

func newQueueCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect broker lanes and the dead-letter lane",
	}

	var statsQueue string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show ready, delayed, leased and dead-lettered counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			brokers, err := a.brokers(statsQueue)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if err := writef(w, "QUEUE\tLANE\tREADY\tDELAYED\n"); err != nil {
				return err
			}
			var summaries []string
			for _, b := range brokers {
				st, err := b.Stats(cmd.Context())
				if err != nil {
					return fmt.Errorf("%s stats: %w", b.Name(), err)
				}
				if err := writeLaneStats(w, b.Name(), st); err != nil {
					return err
				}
				dead := fmt.Sprintf("%d dead-lettered", st.DeadLetter)
				if st.DeadLetter > 0 {
					dead = deadColor.Sprint(dead)
				}
				summaries = append(summaries, fmt.Sprintf("%s: %d leased, %s", b.Name(), st.Leased, dead))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			for _, s := range summaries {
				if err := writef(cmd.OutOrStdout(), "%s\n", s); err != nil {
					return err
				}
			}
			return nil
		},
	}
	stats.Flags().StringVar(&statsQueue, "queue", "all", "queue to inspect: jobs, webhooks or all")

	cmd.AddCommand(stats, newDeadLetterCmd(a))
	return cmd
}

func writeLaneStats(w *tabwriter.Writer, name string, st core.QueueStats) error {
	lanes := make([]string, 0, len(st.Ready))
	for lane := range st.Ready {
		lanes = append(lanes, lane)
	}
	for lane := range st.Delayed {
		if _, ok := st.Ready[lane]; !ok {
			lanes = append(lanes, lane)
		}
	}
	sort.Strings(lanes)
	for _, lane := range lanes {
		if err := writef(w, "%s\t%s\t%d\t%d\n", name, lane, st.Ready[lane], st.Delayed[lane]); err != nil {
			return err
		}
	}
	return nil
}

func newDeadLetterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dead-letter",
		Aliases: []string{"dlq"},
		Short:   "List or replay dead-lettered items",
	}

	var (
		listQueue string
		limit     int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered items, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			brokers, err := a.brokers(listQueue)
			if err != nil {
				return err
			}
			items, err := brokers[0].ListDeadLetters(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return writef(cmd.OutOrStdout(), "no dead-lettered items\n")
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if err := writef(w, "ID\tLANE\tPARKED AT\tREASON\n"); err != nil {
				return err
			}
			for _, it := range items {
				if err := writef(w, "%s\t%s\t%s\t%s\n", it.ID, it.Lane, it.ParkedAt.UTC().Format(time.RFC3339), it.Reason); err != nil {
					return err
				}
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&listQueue, "queue", queueJobs, "queue to inspect: jobs or webhooks")
	list.Flags().IntVar(&limit, "limit", 50, "maximum number of items to list")

	var replayQueue string
	replay := &cobra.Command{
		Use:   "replay <id>...",
		Short: "Move dead-lettered items back onto their lane",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			brokers, err := a.brokers(replayQueue)
			if err != nil {
				return err
			}
			missing := 0
			for _, id := range args {
				ok, err := brokers[0].ReplayDeadLetter(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("replay %s: %w", id, err)
				}
				if !ok {
					missing++
					if err := writef(cmd.ErrOrStderr(), "%s is not dead-lettered\n", id); err != nil {
						return err
					}
					continue
				}
				if err := writef(cmd.OutOrStdout(), "replayed %s\n", id); err != nil {
					return err
				}
			}
			if missing > 0 {
				return fmt.Errorf("%d of %d items were not replayed", missing, len(args))
			}
			return nil
		},
	}
	replay.Flags().StringVar(&replayQueue, "queue", queueJobs, "queue to replay into: jobs or webhooks")

	cmd.AddCommand(list, replay)
	return cmd
}
