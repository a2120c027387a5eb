package main

import (
	"encoding/json"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/datallboy/tubefetch/internal/domain"
	"github.com/datallboy/tubefetch/internal/platform"
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Run one download in-process, without quota or history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer a.Logger.Close()

			if _, err := platform.ValidateDependencies(platform.RequiredBinaries(a.Config)); err != nil {
				return &ExitError{Code: ExitMissingDep, Err: err}
			}

			format, _ := cmd.Flags().GetString("format")
			quality, _ := cmd.Flags().GetString("quality")
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")

			req := domain.DownloadRequest{
				URL:       args[0],
				Format:    domain.Format(format),
				Quality:   domain.Quality(quality),
				StartTime: start,
				EndTime:   end,
			}

			orch, err := newOrchestrator(a.Config, a.Logger)
			if err != nil {
				return err
			}

			jobID := ksuid.New().String()
			outcomes, err := orch.Run(cmd.Context(), jobID, req, func(stage domain.Stage) {
				a.Logger.Info("[%s] %s", jobID, stage)
			})
			if err != nil {
				return &ExitError{Code: ExitDownloadErr, Err: err}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(outcomes)
		},
	}

	cmd.Flags().StringP("format", "f", "mp4", "Output format: mp4, webm, mp3")
	cmd.Flags().StringP("quality", "q", "720p", "Video quality (ignored for mp3)")
	cmd.Flags().String("start", "", "Trim start (HH:MM:SS)")
	cmd.Flags().String("end", "", "Trim end (HH:MM:SS)")
	return cmd
}
