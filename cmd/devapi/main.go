package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"genclient/internal/http/handlers"
	httpapi "genclient/internal/http/httpapi"
	"genclient/internal/infra"
	"genclient/internal/storage"
)

func main() {
	// Configuration & logger
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	files, err := storage.NewFileStore(cfg.DevStoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare upload storage")
	}

	// In-memory job book seeded with the configured balance
	book := handlers.NewJobBook(cfg.DevInitialCredits)
	app := handlers.NewApp(book, files, logger)
	app.MaxUploadBytes = (cfg.VideoMaxMB + 10) << 20

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		Token:           cfg.APIToken,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSAllowedOrigins,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("storage", files.BasePath()).
			Int("credits", cfg.DevInitialCredits).
			Msgf("dev API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
