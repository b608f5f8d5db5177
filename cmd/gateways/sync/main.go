package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	config "github.com/kairohq/backend/config/sync"
	"github.com/kairohq/backend/gateways/sync"
	"github.com/kairohq/backend/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{
		Level:      slog.LevelInfo,
		Output:     os.Stderr,
		AddSource:  true,
		JSONFormat: true,
	})

	cfg := config.MustLoad()
	log.Info("configuration loaded",
		slog.Int("port", cfg.Port),
		slog.Int("sync_window_days", cfg.SyncWindowDays),
		slog.Bool("auto_join_enabled", cfg.AutoJoinEnabled),
		slog.String("recall_api_key_set", func() string {
			if cfg.Recall.APIKey != "" {
				return "true"
			}
			return "false"
		}()))

	ctx := logger.WithContext(context.Background(), log)
	rootCtx, cancel := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer cancel()

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("application terminated with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("application terminated successfully")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	srv, err := sync.New(ctx, cfg)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}

	return srv.Start(ctx)
}
