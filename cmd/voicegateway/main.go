package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/config"
	"github.com/omochi-ai/voicechat/internal/gateway"
	"github.com/omochi-ai/voicechat/internal/observability"
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

	if cfg.OpenAIAPIKey == "" {
		logger.Warn().Msg("OPENAI_API_KEY is not set; session requests will fail")
	}
	if cfg.NijivoiceAPIKey == "" {
		logger.Warn().Msg("NIJIVOICE_API_KEY is not set; synthesis requests will fail")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace + "_gateway")
	creds := gateway.NewRealtimeSessions(gateway.RealtimeConfig{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		Model:        cfg.RealtimeModel,
		Instructions: cfg.AssistantInstructions,
	}, &http.Client{Timeout: cfg.SignalingTimeout})
	voices := gateway.NewVoiceActor(gateway.VoiceConfig{
		APIKey:       cfg.NijivoiceAPIKey,
		BaseURL:      cfg.NijivoiceBaseURL,
		VoiceActorID: cfg.NijivoiceVoiceActorID,
		Speed:        cfg.NijivoiceSpeed,
	}, &http.Client{Timeout: cfg.SynthesisTimeout})

	srv := gateway.New(creds, voices, metrics, logger)
	httpServer := &http.Server{
		Addr:              cfg.GatewayBindAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.GatewayBindAddr).Msg("gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}
	logger.Info().Msg("shutdown complete")
}
