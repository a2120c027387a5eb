package main

import (
	"github.com/spf13/cobra"
)

const (
	ExitOK          = 0
	ExitCLIError    = 1
	ExitMissingDep  = 2
	ExitDownloadErr = 3
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tubefetch",
		Short:         "Queue-backed video download service",
		Long:          "tubefetch downloads videos and playlists with yt-dlp, trims them with ffmpeg and enforces per-user daily quotas behind an HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "Path to config.yaml (defaults to ./config.yaml or /config/config.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newDownloadCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newDoctorCmd())

	return root
}
