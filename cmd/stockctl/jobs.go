package main

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/stockroom/jobs"
)

func newJobsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}
	cmd.AddCommand(newWarmupCmd(opts), newQueueCmd(opts))
	return cmd
}

func newWarmupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "warmup",
		Short: "Enqueue a statistics cache warmup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := jobs.NewClient(asynq.RedisClientOpt{Addr: opts.redisAddr})
			defer client.Close()

			if err := client.EnqueueStatisticsWarmup(cmd.Context(), "manual"); err != nil {
				return fmt.Errorf("jobs warmup: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "statistics warmup enqueued")
			return nil
		},
	}
}

func newQueueCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the default queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: opts.redisAddr})
			defer inspector.Close()

			info, err := inspector.GetQueueInfo(jobs.QueueDefault)
			if err != nil {
				return fmt.Errorf("jobs queue: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				info.Queue, info.Pending, info.Active, info.Scheduled, info.Retry, info.Archived)
			return nil
		},
	}
}
