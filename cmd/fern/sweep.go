package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/jobs"
)

func newSweepCmd() *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete finished jobs past their retention once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			if retention > 0 {
				cfg.JobRetention = retention
			}
			cfg.KafkaEnabled = false
			cfg.GraphEnabled = false

			a := newApp(cfg, logger)
			a.addDatabase(false)
			a.addRedis()
			a.addKafka()
			a.addGraph()
			a.addServices(false)
			if err := a.startup.Start(cmd.Context()); err != nil {
				return err
			}
			defer a.shutdown()

			sweeper := jobs.NewSweeper(a.jobs, a.locker(), jobs.SweeperConfig{Retention: cfg.JobRetention}, logger)
			deleted := sweeper.Sweep(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d finished jobs older than %s\n", deleted, cfg.JobRetention)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "Override JOB_RETENTION")
	return cmd
}
