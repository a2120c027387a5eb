package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datallboy/tubefetch/internal/infra/config"
	"github.com/datallboy/tubefetch/internal/platform"
	"github.com/datallboy/tubefetch/internal/store"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose external dependencies (yt-dlp, ffmpeg) and the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			found, err := platform.ValidateDependencies(platform.RequiredBinaries(cfg))
			for _, dep := range platform.RequiredBinaries(cfg) {
				if path, ok := found[dep.Name]; ok {
					fmt.Fprintf(out, "%-8s %s\n", dep.Name+":", path)
				}
			}
			if err != nil {
				return &ExitError{Code: ExitMissingDep, Err: err}
			}

			if cfg.Store.Driver != config.DriverSQLite {
				fmt.Fprintf(out, "store:   %s\n", cfg.Store.Driver)
				return nil
			}

			st, err := store.NewPersistentStore(cfg.Store.SQLitePath)
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			defer st.Close()

			version, dirty, err := st.SchemaVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "store:   sqlite %s (schema v%d, dirty=%t)\n", cfg.Store.SQLitePath, version, dirty)
			return nil
		},
	}
}
