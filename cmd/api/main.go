package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"imagine/internal/adapter/repo"
	"imagine/internal/generation"
	"imagine/internal/http/handlers"
	httpapi "imagine/internal/http/httpapi"
	"imagine/internal/infra"
	"imagine/internal/providers/midjourney"
)

// sessionIdleTTL drops controllers of sessions nobody asked about for a while.
const sessionIdleTTL = 30 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx := context.Background()
	store, closeStore, err := repo.Open(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open history store")
	}
	defer closeStore()

	if err := cfg.RequireGenerationAPI(); err != nil {
		logger.Warn().Err(err).Msg("generation requests will be rejected")
	}
	client := midjourney.NewClient(midjourney.Options{
		BaseURL:        cfg.MJAPIURL,
		HTTPClient:     &http.Client{Timeout: cfg.RequestTimeout},
		Logger:         &logger,
		RequestTimeout: cfg.RequestTimeout,
	})

	sessions := generation.NewRegistry(func(ownerID string) *generation.Controller {
		return generation.NewController(generation.Options{
			Client:         client,
			Store:          store,
			Logger:         &logger,
			PollInterval:   cfg.PollInterval,
			PollTimeout:    cfg.PollTimeout,
			PersistTimeout: cfg.PersistTimeout,
			OwnerID:        ownerID,
		})
	}, sessionIdleTTL)

	app := handlers.NewApp(cfg, &logger, store, sessions)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("persistence", cfg.PersistenceBackend()).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	sessions.Close()
	logger.Info().Msg("server stopped")
}
