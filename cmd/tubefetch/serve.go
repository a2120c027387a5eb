package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/datallboy/tubefetch/internal/api"
	"github.com/datallboy/tubefetch/internal/auth"
	"github.com/datallboy/tubefetch/internal/gate"
	"github.com/datallboy/tubefetch/internal/infra/config"
	"github.com/datallboy/tubefetch/internal/infra/logger"
	"github.com/datallboy/tubefetch/internal/platform"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, unless disabled, the worker pool",
		RunE:  runServe,
	}
	cmd.Flags().Bool("no-workers", false, "Serve the API only; workers run elsewhere (redis backend)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer a.Logger.Close()

	noWorkers, _ := cmd.Flags().GetBool("no-workers")
	if noWorkers && a.Config.Queue.Backend != config.BackendRedis {
		return &ExitError{Code: ExitCLIError, Err: errors.New("--no-workers requires the redis queue backend")}
	}

	if err := openServices(ctx, a); err != nil {
		return err
	}
	defer a.Close()

	if a.Config.AuthEnabled() {
		v, err := auth.NewVerifier(a.Config.Auth)
		if err != nil {
			return err
		}
		a.Verifier = v
	} else {
		a.Logger.Warn("auth.jwt_secret is empty, every request runs as user %q", api.LocalUser)
	}

	a.Gate = gate.New(a.Config, a.Logger, a.Store, a.Store, a.Queue)

	if !noWorkers {
		if _, err := platform.ValidateDependencies(platform.RequiredBinaries(a.Config)); err != nil {
			return &ExitError{Code: ExitMissingDep, Err: err}
		}

		pool, err := newWorkerPool(a)
		if err != nil {
			return err
		}
		if err := pool.Start(ctx); err != nil {
			return err
		}
		defer pool.Stop()
	}

	e := echo.New()
	api.RegisterRoutes(e, a)

	srv := newHTTPServer(ctx, ":"+a.Config.Port, e)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("Shutting down API...")
		return shutdownServer(srv, shutdownGrace, a.Logger)
	})

	return g.Wait()
}

const shutdownGrace = 10 * time.Second

// newHTTPServer derives every request context from ctx, so a pending
// submit-and-wait returns its job id as soon as ctx ends.
func newHTTPServer(ctx context.Context, addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

// shutdownServer drains connections for up to grace. Handlers still
// running after that are abandoned without failing the process.
func shutdownServer(srv *http.Server, grace time.Duration, log *logger.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("Shutdown grace of %s elapsed with requests in flight", grace)
		return srv.Close()
	}
	return err
}
