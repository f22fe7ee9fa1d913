package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/archive"
	"github.com/omochi-ai/voicechat/internal/audio"
	"github.com/omochi-ai/voicechat/internal/config"
	"github.com/omochi-ai/voicechat/internal/httpapi"
	"github.com/omochi-ai/voicechat/internal/observability"
	"github.com/omochi-ai/voicechat/internal/rtc"
	"github.com/omochi-ai/voicechat/internal/session"
	"github.com/omochi-ai/voicechat/internal/signaling"
	"github.com/omochi-ai/voicechat/internal/synthesis"
)

type BuildResult struct {
	Config     config.Config
	API        *httpapi.Server
	Controller *session.Controller
	Metrics    *observability.Metrics
	// AudioBackend is "device" or "null".
	AudioBackend string

	// Cleanup releases the playback queue and the archive store. Stop the
	// controller first.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("archive store init failed: %w", err)
	}
	archiver := archive.NewArchiver(store, cfg.ArchiveRedactPII, logger)

	media, err := resolveMedia(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	peers, err := rtc.NewFactory(rtc.Config{ICEServers: cfg.ICEServers}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("rtc init failed: %w", err)
	}

	// The queue is built before the controller it reports to.
	var controller *session.Controller
	queue := audio.NewQueue(audio.ContainerDecoder{}, media.output, audio.QueueOptions{
		OnSpeakingChange: func(speaking bool) {
			if controller != nil {
				controller.NotifySpeaking(speaking)
			}
		},
		OnResult: func(result string) {
			metrics.PlaybackResults.WithLabelValues(result).Inc()
		},
	}, logger)

	speaker := synthesis.NewBridge(synthesis.Config{
		GatewayBaseURL: cfg.GatewayBaseURL,
		Timeout:        cfg.SynthesisTimeout,
		OnResult: func(result string) {
			metrics.SynthesisRequests.WithLabelValues(result).Inc()
		},
		OnLatency: metrics.ObserveSynthesisLatency,
	}, queue, logger)

	signaler := signaling.NewClient(signaling.Config{
		GatewayBaseURL: cfg.GatewayBaseURL,
		RealtimeURL:    cfg.RealtimeURL,
		Model:          cfg.RealtimeModel,
		Voice:          cfg.RealtimeVoice,
		Timeout:        cfg.SignalingTimeout,
	})

	controller = session.NewController(session.Deps{
		Microphone: media.capturer,
		Peers:      peerFactory{factory: peers},
		Signaler:   signaler,
		Speaker:    speaker,
		Player:     queue,
		Archiver:   archiver,
		Metrics:    metrics,
	}, session.Options{
		IdleTimeout:    cfg.SessionIdleTimeout,
		HealthInterval: cfg.SessionHealthInterval,
	}, logger)

	var pinger httpapi.Pinger
	if p, ok := store.(httpapi.Pinger); ok {
		pinger = p
	}
	api := httpapi.New(cfg, controller, metrics, pinger, archiver, logger)

	cleanup := func() error {
		var errs []string
		if err := queue.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Controller:   controller,
		Metrics:      metrics,
		AudioBackend: media.backend,
		Cleanup:      cleanup,
	}, nil
}
