package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"identity-forge/internal/album"
	"identity-forge/internal/app"
	"identity-forge/internal/config"
	"identity-forge/internal/handlers"
	"identity-forge/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.RequireTelegram(); err != nil {
		panic(err)
	}

	logger := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("init failed", "err", err)
		os.Exit(1)
	}

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: core.HTTPClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	handler := handlers.New(handlers.Options{
		Messenger: tg,
		Batch:     core.Batch,
		Sessions:  core.Sessions,
		Logger:    logger,
	})

	sem := make(chan struct{}, cfg.MaxConcurrent)
	albums := album.New(album.Options{
		Quiet: cfg.AlbumQuiet,
		OnAlbum: func(a album.Album) {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func() {
				defer func() { <-sem }()

				reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
				defer cancel()

				handler.HandleAlbum(reqCtx, a)
			}()
		},
	})
	handler.SetAlbumCollector(albums)

	logger.Info("bot started", "username", tg.Username(), "backend", cfg.GeminiBackend, "model", cfg.GeminiImageModel)

	updates := tg.Updates(30 * time.Second)
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(update telegram.Update) {
				defer func() { <-sem }()

				reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "update_id", update.UpdateID, "err", err)
				}
			}(update)
		}
	}
}
