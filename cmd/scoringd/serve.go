package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-interview-scoring/adapters/gojob"
	"github.com/goliatone/go-interview-scoring/httpapi"
	"github.com/goliatone/go-interview-scoring/webhooks"
	"github.com/spf13/cobra"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var runMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook, job trigger and status endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, runMigrations)
		},
	}
	cmd.Flags().BoolVar(&runMigrations, "migrate", false, "apply migrations before serving")
	return cmd
}

func serve(ctx context.Context, opts *rootOptions, runMigrations bool) error {
	cfg, err := loadConfig(ctx, opts.v)
	if err != nil {
		return err
	}
	settings, err := loadProviderSettings(opts.v)
	if err != nil {
		return err
	}
	a, err := bootstrap(ctx, cfg, settings, bootstrapOptions{
		migrate:     runMigrations,
		withWakeups: settings.WorkerEnabled,
	})
	if err != nil {
		return err
	}
	defer a.close()

	handler, err := newHTTPHandler(a)
	if err != nil {
		return err
	}

	if a.wakeups != nil {
		worker, err := gojob.NewCycleWorker(a.wakeups, a.service, gojob.CycleWorkerConfig{
			Policy:     gojob.RetryPolicy{MaxAttempts: cfg.Runner.MaxAttempts, DeadLetterOnMax: true},
			RetryDelay: cfg.Enqueue.InitialBackoff,
			Hook:       gojob.NewLoggingHook(a.logs.Logger("worker")),
			Logger:     a.logs.Logger("worker"),
		})
		if err != nil {
			return err
		}
		go func() {
			_ = worker.Run(ctx, settings.WorkerIdle)
		}()
	}

	if cfg.Runner.TriggerToken == "" {
		a.logger.Warn("runner.trigger_token is empty; POST /jobs/run is disabled")
	}
	return httpapi.Serve(ctx, cfg.HTTP, handler, a.logs.Logger("http"))
}

func newHTTPHandler(a *app) (*gin.Engine, error) {
	var notifier webhooks.Notifier
	if a.wakeups != nil {
		notifier = gojob.NewWakeNotifier(a.wakeups)
	}
	ingestor, err := webhooks.NewServiceIngestor(a.service, notifier)
	if err != nil {
		return nil, err
	}
	return httpapi.NewRouter(httpapi.Deps{
		Webhooks:     ingestor,
		Runner:       a.service,
		Status:       a.service,
		TriggerToken: a.cfg.Runner.TriggerToken,
		Metrics:      a.metrics,
		Logger:       a.logs.Logger("http"),
	}), nil
}
