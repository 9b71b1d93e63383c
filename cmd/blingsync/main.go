package main

import (
	"context"
	"log"

	"blingsync/internal/bling"
	"blingsync/internal/config"
	"blingsync/internal/handler"
	"blingsync/internal/logger"
	"blingsync/internal/metrics"
	"blingsync/internal/store"
	syncsvc "blingsync/internal/sync"
	"blingsync/internal/token"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	metrics.RegisterDefault()

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}

	ctx := context.Background()

	tokens := token.NewProvider(cfg.Token, cfg.Accounts, store)
	if err := tokens.SeedFromConfig(ctx); err != nil {
		return err
	}

	pacer := bling.NewPacer(cfg.Bling.Spacing)
	client := bling.NewClient(cfg.Bling, tokens, pacer, zaplog)
	service := syncsvc.NewService(cfg.Sync, cfg.Accounts, client, store, tokens, zaplog)

	service.StartPolling(ctx)

	return handler.Serve(cfg.Handler, service, tokens, zaplog)
}
