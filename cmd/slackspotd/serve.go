package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/patrickmn/go-cache"
	"github.com/spf13/cobra"

	"slackspot-backend/internal/api"
	"slackspot-backend/internal/notification"
	"slackspot-backend/internal/sweeper"
)

func newServeCommand(logger *log.Logger, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the expiry sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), logger, *configPath)
		},
	}
}

func serve(parent context.Context, logger *log.Logger, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, logger, configPath)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	responses := cache.New(cfg.Server.CacheTTL, 2*cfg.Server.CacheTTL)
	sweeperOpts := []sweeper.Option{sweeper.WithRecorder(a.metrics), sweeper.WithInvalidator(responses)}
	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, a.store.PushTargets, webpushOptions)
		pool.Start(ctx)
		sweeperOpts = append(sweeperOpts, sweeper.WithNotifier(pool))
		logger.Printf("push notifications enabled with %d workers", cfg.WorkerPool.Size)
	} else {
		logger.Println("VAPID keys are not configured; expiry notifications are disabled")
	}

	sweeperSvc := sweeper.NewService(cfg.Sweeper, a.store, a.engine, sweeperOpts...)
	go sweeperSvc.Run(ctx)

	handler := api.NewHandler(a.engine, a.store, webpushOptions, cfg.Occupancy.DefaultDurationHours)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(ctx, handler, cfg.Server, responses, a.registry),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server ListenAndServe: %w", err)
		}
	case <-ctx.Done():
		logger.Println("Shutdown signal received, stopping services...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server Shutdown: %w", err)
	}

	logger.Println("Server gracefully stopped")
	return nil
}
