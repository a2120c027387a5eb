package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/datallboy/tubefetch/internal/infra/config"
	"github.com/datallboy/tubefetch/internal/platform"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume download jobs from the shared redis queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer a.Logger.Close()

			if a.Config.Queue.Backend != config.BackendRedis {
				return &ExitError{Code: ExitCLIError, Err: errors.New("worker requires queue.backend=redis")}
			}
			if _, err := platform.ValidateDependencies(platform.RequiredBinaries(a.Config)); err != nil {
				return &ExitError{Code: ExitMissingDep, Err: err}
			}

			if err := openServices(ctx, a); err != nil {
				return err
			}
			defer a.Close()

			pool, err := newWorkerPool(a)
			if err != nil {
				return err
			}
			if err := pool.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			a.Logger.Info("Shutting down worker...")
			pool.Stop()
			return nil
		},
	}
}
