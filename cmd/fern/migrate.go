package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}

			a := newApp(cfg, logger)
			a.addDatabase(true)
			if err := a.startup.Start(cmd.Context()); err != nil {
				return err
			}
			logger.Info("Migrations applied")
			return a.shutdown()
		},
	}
}
