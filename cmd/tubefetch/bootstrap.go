package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datallboy/tubefetch/internal/app"
	"github.com/datallboy/tubefetch/internal/engine"
	"github.com/datallboy/tubefetch/internal/infra/config"
	"github.com/datallboy/tubefetch/internal/infra/logger"
	"github.com/datallboy/tubefetch/internal/media"
	"github.com/datallboy/tubefetch/internal/queue"
	"github.com/datallboy/tubefetch/internal/store"
	"github.com/datallboy/tubefetch/internal/store/postgres"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, &ExitError{Code: ExitCLIError, Err: fmt.Errorf("config error: %w", err)}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
}

// bootstrap loads config and logging and builds the app context.
func bootstrap(cmd *cobra.Command) (*app.Context, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return app.NewContext(cfg, log), nil
}

func openStore(ctx context.Context, cfg *config.Config) (app.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.Store.PostgresDSN)
	default:
		return store.NewPersistentStore(cfg.Store.SQLitePath)
	}
}

func openQueue(ctx context.Context, cfg *config.Config) (queue.Queue, error) {
	switch cfg.Queue.Backend {
	case config.BackendRedis:
		return queue.NewRedisQueueWithURL(ctx, cfg.Queue.RedisURL, queue.RedisOptions{ResultTTL: cfg.Queue.ResultTTL})
	default:
		return queue.NewMemoryQueue(cfg.Queue.Buffer), nil
	}
}

func newOrchestrator(cfg *config.Config, log *logger.Logger) (*engine.Orchestrator, error) {
	runner := media.NewExecRunner()
	ytdlp := media.NewYtDlp(media.YtDlpOptions{
		Path:          cfg.Media.YtDlpPath,
		PlaylistLimit: cfg.Download.PlaylistLimit,
		AudioQuality:  cfg.Download.AudioQuality,
	}, runner, log)
	ffmpeg := media.NewFFmpeg(cfg.Media.FFmpegPath, cfg.Media.MaxConcurrentTrims, runner, log)

	return engine.NewOrchestrator(cfg, log, ytdlp, ytdlp, ffmpeg)
}

// newWorkerPool wires the download task into a pool consuming a.Queue.
func newWorkerPool(a *app.Context) (*queue.Pool, error) {
	orch, err := newOrchestrator(a.Config, a.Logger)
	if err != nil {
		return nil, err
	}

	registry := queue.NewRegistry()
	if err := engine.RegisterTasks(registry, engine.NewDownloadHandler(orch, a.Store, a.Logger)); err != nil {
		return nil, err
	}
	return queue.NewPool(a.Queue, registry, a.Config.Queue.Workers, a.Logger), nil
}

// openServices attaches the store and the queue to a.
func openServices(ctx context.Context, a *app.Context) error {
	st, err := openStore(ctx, a.Config)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", a.Config.Store.Driver, err)
	}
	a.Store = st

	q, err := openQueue(ctx, a.Config)
	if err != nil {
		return fmt.Errorf("failed to open %s queue: %w", a.Config.Queue.Backend, err)
	}
	a.Queue = q
	return nil
}
