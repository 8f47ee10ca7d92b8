package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"creator-platform/internal/config"
	"creator-platform/internal/gateway"
	"creator-platform/internal/logging"
	"creator-platform/internal/payments"
	"creator-platform/internal/store"
)

var configDir string

// env is what every subcommand works with. Nothing is notified from here;
// creators only get live alerts from the API process.
type env struct {
	cfg        config.Config
	logger     *slog.Logger
	db         *sqlx.DB
	store      *store.Postgres
	reconciler *payments.Reconciler
	verifier   *payments.CallbackVerifier
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, errors.New("DSN is required")
	}

	logger := logging.New(cfg.Logging)
	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	pg := store.NewPostgres(db)

	gw := gateway.NewMidtrans(cfg.Gateway, cfg.Redirect.CallbackBaseURL+"/api/payments/finish", pg, logger)
	rec := payments.NewReconciler(pg, gw, cfg.Payments.FeeBPS, logger)

	return &env{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		store:      pg,
		reconciler: rec,
		verifier:   payments.NewCallbackVerifier(pg, gw, rec, logger),
	}, nil
}

func (e *env) Close() {
	if err := e.db.Close(); err != nil {
		e.logger.Warn("closing database failed", "error", err)
	}
}
