package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"creator-platform/internal/config"
	"creator-platform/internal/gateway"
	"creator-platform/internal/handlers"
	"creator-platform/internal/logging"
	"creator-platform/internal/payments"
	"creator-platform/internal/server"
	"creator-platform/internal/store"
	"creator-platform/internal/websocket"
)

func main() {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	pg := store.NewPostgres(db)

	midtrans := gateway.NewMidtrans(cfg.Gateway, cfg.Redirect.CallbackBaseURL+"/api/payments/finish", pg, logger)

	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	reconciler := payments.NewReconciler(pg, midtrans, cfg.Payments.FeeBPS, logger).WithNotifier(hub)
	verifier := payments.NewCallbackVerifier(pg, midtrans, reconciler, logger)
	intents := payments.NewIntentService(pg, midtrans, verifier, payments.IntentConfig{
		Currency:    cfg.Payments.Currency,
		FeeBPS:      cfg.Payments.FeeBPS,
		MinTipMinor: cfg.Payments.MinTipMinor,
	}, logger)
	resolver := payments.NewRedirectResolver(cfg.Redirect.FrontendBaseURL, logger)

	router := server.NewRouter(logger, server.RouterDependencies{
		Health:         pg,
		Auth:           handlers.NewAuthHandler(pg, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, logger),
		Creators:       handlers.NewCreatorHandler(pg, logger),
		Payments:       handlers.NewPaymentHandler(pg, intents, verifier, resolver, midtrans, logger),
		WebSocket:      handlers.NewWebSocketHandler(pg, hub, logger),
		JWTSecret:      cfg.Auth.JWTSecret,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	srv := server.New(logger, cfg.HTTP, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("server stopped unexpectedly", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	stop()
}
