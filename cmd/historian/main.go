// cmd/historian/main.go drains recorded board actions from Redis into Postgres.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/vicr123/entertaining-server/internal/cache"
	"github.com/vicr123/entertaining-server/internal/config"
	"github.com/vicr123/entertaining-server/internal/database"
	"github.com/vicr123/entertaining-server/internal/historian"
	"github.com/vicr123/entertaining-server/internal/models"
)

func main() {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	logger := cfg.Log.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.PostgresURL(), logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer pool.Close()
	if err := database.Migrate(cfg.PostgresURL(), logger); err != nil {
		logger.Fatal(err)
	}

	rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		logger.Fatal(err)
	}
	defer rdb.Close()

	queue := cache.NewActionQueue(rdb, cfg.Redis.ActionQueue, logger)
	sink := func(ctx context.Context, actions []models.BoardAction) error {
		return database.InsertBoardActions(ctx, pool, actions)
	}

	svc := historian.NewService(queue, sink, cfg.Historian.BatchSize, cfg.Historian.FlushDelay, logger)
	if err := svc.Run(ctx); err != nil {
		logger.Errorf("historian stopped: %v", err)
	}
	logger.Info("Historian shutdown complete.")
}
