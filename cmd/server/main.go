package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Moderation/internal/adapters/http"
	"github.com/dkeye/Moderation/internal/app"
	"github.com/dkeye/Moderation/internal/app/featureflag"
	"github.com/dkeye/Moderation/internal/app/orch"
	"github.com/dkeye/Moderation/internal/config"
	"github.com/dkeye/Moderation/internal/core"
	"github.com/dkeye/Moderation/internal/storage/postgres"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	var store core.MemberStore
	if cfg.Storage.Driver == "postgres" {
		pool, err := postgres.NewPool(ctx, cfg.Storage)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
		store = postgres.NewRepository(pool)
	}

	manager := app.NewRoomManager(cfg.PowerLevels, store)
	if err := manager.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("restore rooms")
	}

	orch := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    manager,
		Flags:    featureflag.NewService(cfg.Features),
		Policy:   app.SimplePolicy{DisconnectSlow: cfg.Signal.Backpressure == "disconnect"},
	}

	r := router.SetupRouter(ctx, cfg, orch)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("storage", cfg.Storage.Driver).Msg("Moderation server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
