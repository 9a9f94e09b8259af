package cli

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/api"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/config"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/errors"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/logger"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/metrics"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/report"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/stage"
	"github.com/QuakeWang/doris-dashboard/apps/recond/internal/store"
)

func newStageCommand(opts *options, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				r := a.runner(opts.runID)
				_, skipped, err := r.RunStage(cmd.Context(), name, opts.force)
				if err != nil {
					return asFatal(r.Run.ID, name, err)
				}
				key, _ := r.Key(name)
				log := logger.With("run", r.Run.ID, "stage", name)
				if skipped {
					log.Infow("artifact exists, use --force to rerun", "key", key)
					return nil
				}
				log.Infow("artifact written", "key", key)
				return nil
			})
		},
	}
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every stage in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				r := a.runner(opts.runID)
				for _, s := range stage.Stages {
					_, skipped, err := r.RunStage(cmd.Context(), s, opts.force)
					if err != nil {
						return asFatal(r.Run.ID, s, err)
					}
					logger.With("run", r.Run.ID, "stage", s).Infow("stage finished", "skipped", skipped)
				}
				return nil
			})
		},
	}
}

func newReportCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "report [stage...]",
		Short: "Render xlsx summaries of stored stage artifacts",
		Long:  "Render an xlsx summary for each named stage, or for every stage whose artifact exists.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				ctx := cmd.Context()
				r := a.runner(opts.runID)
				stages, explicit := args, len(args) > 0
				if !explicit {
					stages = stage.Stages
				}
				written := 0
				for _, s := range stages {
					v, err := r.Artifact(ctx, s)
					if errors.Is(err, store.ErrNotFound) && !explicit {
						continue
					}
					if err != nil {
						return asFatal(r.Run.ID, s, err)
					}
					key, err := report.Write(ctx, a.blob, r.Run.ID, s, v)
					if err != nil {
						return asFatal(r.Run.ID, s, err)
					}
					written++
					logger.With("run", r.Run.ID, "stage", s).Infow("report written", "key", key)
				}
				if written == 0 {
					return errors.WithHint(errors.Newf("run %s has no stage artifacts", r.Run.ID), "run stage1 first")
				}
				return nil
			})
		},
	}
}

func newServeCommand(opts *options) *cobra.Command {
	var (
		listen       string
		stageTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the loopback-only control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !api.IsLoopbackAddr(listen) {
				return errors.WithHint(
					errors.Newf("--listen must bind to loopback only, got %q", listen),
					"use 127.0.0.1, [::1] or localhost",
				)
			}
			if stageTimeout <= 0 {
				stageTimeout = 6 * time.Hour
			}
			return withApp(cmd.Context(), opts, func(a *app) error {
				return serve(cmd.Context(), a, listen, stageTimeout)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:12306", "HTTP listen address")
	cmd.Flags().DurationVar(&stageTimeout, "stage-timeout", 6*time.Hour, "upper bound of one stage request")
	return cmd
}

func serve(ctx context.Context, a *app, listen string, stageTimeout time.Duration) error {
	// Stages of one process share the backend pools, so they run one at a time.
	var mu sync.Mutex
	runStage := func(ctx context.Context, runID, name string, force bool) (any, bool, error) {
		mu.Lock()
		defer mu.Unlock()
		r := a.runner(runID)
		v, skipped, err := r.RunStage(ctx, name, force)
		return v, skipped, asFatal(r.Run.ID, name, err)
	}
	load := func(ctx context.Context, runID, name string) (any, error) {
		return a.runner(runID).Artifact(ctx, name)
	}
	version := func(ctx context.Context, side config.Side) (string, error) {
		return a.backends.Version(ctx, a.cfg.Backend(side).Dialect)
	}

	httpServer := &http.Server{
		Addr:              listen,
		Handler:           api.NewServer(runStage, load, version, metrics.Default.Handler(), stageTimeout),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      stageTimeout + 10*time.Second,
		IdleTimeout:       30 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Logger.Infof("recond listening on http://%s", listen)
		errc <- httpServer.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server error")
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}
