package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/audio"
	"github.com/omochi-ai/voicechat/internal/config"
)

type mediaSetup struct {
	capturer audio.Capturer
	output   audio.Output
	backend  string
}

func resolveMedia(cfg config.Config, logger zerolog.Logger) (mediaSetup, error) {
	playback := audio.Format{SampleRate: cfg.AudioPlaybackSampleRate, Channels: 2}

	switch cfg.AudioBackend {
	case "device":
		// The output context opens lazily, so a machine without a speaker
		// still starts and fails on first playback instead.
		return mediaSetup{
			capturer: audio.NewDeviceCapturer(cfg.AudioCaptureSampleRate, logger),
			output:   audio.NewOtoOutput(playback),
			backend:  "device",
		}, nil
	case "null":
		return mediaSetup{
			capturer: audio.NewNullCapturer(cfg.AudioCaptureSampleRate),
			output:   audio.NewNullOutput(playback),
			backend:  "null",
		}, nil
	default:
		return mediaSetup{}, fmt.Errorf("invalid AUDIO_BACKEND: %q (expected device|null)", cfg.AudioBackend)
	}
}
