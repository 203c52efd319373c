package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dancingpatinacao/checkout/internal/bootstrap"
	infraRedis "github.com/dancingpatinacao/checkout/internal/infrastructure/redis"
	"github.com/dancingpatinacao/checkout/internal/worker"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "checkout-worker", "checkout_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	svcs, err := app.Services(ctx)
	if err != nil {
		app.Logger.Error().Err(err).Msg("Failed to wire services")
		return
	}

	// Signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Proactive OAuth refresh. Replicas coordinate through Redis when it is
	// enabled.
	var locker worker.Locker
	if app.Redis != nil {
		locker = infraRedis.NewLocker(app.Redis, app.Config.OAuth.LockTTL)
	}
	refresher := worker.NewRefresher(worker.RefresherConfig{
		Interval: app.Config.OAuth.CheckInterval,
		Ahead:    app.Config.OAuth.RefreshAhead,
	}, svcs.OAuth, locker, app.Logger)
	g.Go(func() error {
		return refresher.Run(gCtx)
	})

	// 2. Webhook notification inspector (reads the Redis stream).
	if app.Redis != nil {
		workerCfg := app.Config.Worker
		consumer := infraRedis.NewStreamConsumer(
			app.Redis,
			app.Config.Webhook.Stream,
			workerCfg.ConsumerGroup,
			app.Config.InstanceID,
			workerCfg.BatchSize,
			workerCfg.BlockDuration,
		)
		if err := consumer.CreateGroup(ctx); err != nil {
			app.Logger.Error().Err(err).Msg("Failed to create consumer group")
			return
		}
		inspector := worker.NewInspector(worker.InspectorConfig{}, consumer, svcs.Checkout, app.Metrics, app.Logger)

		app.Logger.Info().
			Str("stream", consumer.Stream()).
			Str("group", workerCfg.ConsumerGroup).
			Str("consumer", app.Config.InstanceID).
			Msg("Worker started, listening for notifications...")

		g.Go(func() error {
			return inspector.Run(gCtx)
		})
	} else {
		app.Logger.Warn().Msg("Redis disabled, webhook inspector not started")
	}

	// 3. Metrics endpoint.
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", app.Config.Worker.MetricsPort), Handler: promhttp.Handler()}
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 4. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
		}
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
