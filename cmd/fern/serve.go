package main

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, and by default the import worker and job sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}

			a := newApp(cfg, logger)
			a.addTracing()
			a.addDatabase(true)
			a.addRedis()
			a.addKafka()
			a.addGraph()
			a.addServices(true)
			if withWorker {
				a.addProcessor(cmd.Context())
				a.addSweeper(cmd.Context())
			}
			a.addHTTP()

			return a.run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&withWorker, "worker", true, "Also consume the job queue in this process")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume the job queue without serving the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}

			a := newApp(cfg, logger)
			a.addTracing()
			a.addDatabase(false)
			a.addRedis()
			a.addKafka()
			a.addGraph()
			a.addServices(true)
			a.addProcessor(cmd.Context())
			a.addSweeper(cmd.Context())

			return a.run(cmd.Context())
		},
	}
}
