// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vicr123/entertaining-server/internal/auth"
	"github.com/vicr123/entertaining-server/internal/cache"
	"github.com/vicr123/entertaining-server/internal/chess"
	"github.com/vicr123/entertaining-server/internal/config"
	"github.com/vicr123/entertaining-server/internal/database"
	"github.com/vicr123/entertaining-server/internal/handlers"
	"github.com/vicr123/entertaining-server/internal/mines"
	"github.com/vicr123/entertaining-server/internal/play"
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

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	pool, err := database.Connect(ctx, cfg.PostgresURL(), logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.Migrate(cfg.PostgresURL(), logger); err != nil {
		return err
	}
	store := database.NewStore(pool)

	signer, err := loadSigner(cfg.Auth, logger)
	if err != nil {
		return err
	}

	rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer rdb.Close()
	queue := cache.NewActionQueue(rdb, cfg.Redis.ActionQueue, logger)

	apps, err := registerApps(cfg, store, queue, logger)
	if err != nil {
		return err
	}

	// opaque tokens from the accounts service first, then our own JWTs
	resolver := auth.Chain{store, signer}
	gw := play.NewGateway(resolver, store, apps, play.NewPresence(), play.Options{
		PingInterval:     cfg.Gateway.PingInterval,
		MaxMissedPings:   cfg.Gateway.MaxMissedPings,
		HandshakeTimeout: cfg.Gateway.HandshakeTimeout,
		SendBuffer:       cfg.Gateway.SendBuffer,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.Routes(logger, gw, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return cache.SubscribeBeam(ctx, rdb, cfg.Redis.BeamChannel, logger, func(userID int64, payload json.RawMessage) {
			if n := gw.Beam(userID, payload); n == 0 {
				logger.Debugf("beam for %d had no session", userID)
			}
		})
	})
	g.Go(func() error {
		logger.Infof("Running on %s (applications: %v)", srv.Addr, apps.Applications())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := gw.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("connections still open at shutdown: %v", err)
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// loadSigner uses the configured key pair, or throwaway keys when none is set.
func loadSigner(cfg config.AuthConfig, logger *logrus.Logger) (*auth.Signer, error) {
	if cfg.PrivateKeyPath == "" || cfg.PublicKeyPath == "" {
		logger.Warn("no JWT key pair configured, generating ephemeral keys")
		return auth.NewSigner(cfg.TokenExpiry)
	}
	return auth.LoadSigner(cfg.PrivateKeyPath, cfg.PublicKeyPath, cfg.TokenExpiry)
}

func registerApps(cfg *config.Config, friends mines.FriendLister, recorder mines.Recorder, logger *logrus.Logger) (*play.Registry, error) {
	rooms := mines.NewRooms(mines.RoomOptions{
		MaxUsers:     cfg.Mines.MaxRoomUsers,
		TurnTimeout:  cfg.Mines.TurnTimeout,
		EndGameDelay: cfg.Mines.EndGameDelay,
	}, recorder, logger)

	apps := play.NewRegistry()
	modules := []play.Module{
		{
			Name:        mines.Name,
			DisplayName: mines.DisplayName,
			Versions:    map[string]play.Factory{"1.0": mines.NewFactory(rooms, friends, logger)},
		},
		{
			Name:        chess.Name,
			DisplayName: chess.DisplayName,
			Versions:    map[string]play.Factory{"1.0": chess.NewFactory(chess.NewDirectory(), logger)},
		},
	}
	for _, m := range modules {
		if err := apps.Register(m); err != nil {
			return nil, err
		}
	}
	if err := apps.Alias("mines", mines.Name); err != nil {
		return nil, err
	}
	if err := apps.Alias("chess", chess.Name); err != nil {
		return nil, err
	}
	return apps, nil
}
