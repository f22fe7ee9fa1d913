package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/app"
	"github.com/omochi-ai/voicechat/internal/config"
	"github.com/omochi-ai/voicechat/internal/observability"
	"github.com/omochi-ai/voicechat/internal/session"
)

func main() {
	bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		bootLog.Warn().Err(err).Msg("no .env file loaded, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal().Err(err).Msg("config error")
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("logger init failed")
	}

	built, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build failed")
	}

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Router(),
	}

	go func() {
		logger.Info().
			Str("addr", cfg.BindAddr).
			Str("audio_backend", built.AudioBackend).
			Str("gateway", cfg.GatewayBaseURL).
			Msg("voicechat listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutdown signal received")

	built.Controller.Stop(session.ReasonShutdown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}
	if err := built.Cleanup(); err != nil {
		logger.Warn().Err(err).Msg("cleanup failed")
	}

	logger.Info().Msg("shutdown complete")
}
