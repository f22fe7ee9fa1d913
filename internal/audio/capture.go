package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/voiceerr"
)

const (
	DefaultCaptureRate = 48000
	FrameDuration      = 20 * time.Millisecond
)

// Capturer acquires a microphone track.
type Capturer interface {
	Acquire(ctx context.Context) (Track, error)
}

func frameSize(sampleRate int) int {
	return sampleRate * int(FrameDuration/time.Millisecond) / 1000
}

// DeviceCapturer records from the default input device through miniaudio.
type DeviceCapturer struct {
	sampleRate int
	logger     zerolog.Logger
}

func NewDeviceCapturer(sampleRate int, logger zerolog.Logger) *DeviceCapturer {
	if sampleRate <= 0 {
		sampleRate = DefaultCaptureRate
	}
	return &DeviceCapturer{
		sampleRate: sampleRate,
		logger:     logger.With().Str("component", "capture").Logger(),
	}
}

func (c *DeviceCapturer) Acquire(ctx context.Context) (Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, voiceerr.Media("acquire", err)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{ThreadPriority: malgo.ThreadPriorityRealtime}, nil)
	if err != nil {
		return nil, voiceerr.Media("acquire", fmt.Errorf("init audio context: %w", err))
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(c.sampleRate)
	cfg.PeriodSizeInMilliseconds = uint32(FrameDuration / time.Millisecond)

	var track *frameTrack
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			track.push(samplesFromLE(input))
		},
	}

	var device *malgo.Device
	track = newFrameTrack(c.sampleRate, frameSize(c.sampleRate), func() {
		if device != nil {
			_ = device.Stop()
			device.Uninit()
		}
		_ = mctx.Uninit()
		mctx.Free()
	})

	device, err = malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		track.Stop()
		return nil, voiceerr.Media("acquire", fmt.Errorf("open microphone: %w", err))
	}
	if err := device.Start(); err != nil {
		track.Stop()
		return nil, voiceerr.Media("acquire", fmt.Errorf("start microphone: %w", err))
	}

	c.logger.Info().Str("track_id", track.ID()).Int("sample_rate", c.sampleRate).Msg("microphone acquired")
	return track, nil
}

// NullCapturer produces silent frames in real time. It backs headless
// hosts and tests.
type NullCapturer struct {
	sampleRate int
}

func NewNullCapturer(sampleRate int) *NullCapturer {
	if sampleRate <= 0 {
		sampleRate = DefaultCaptureRate
	}
	return &NullCapturer{sampleRate: sampleRate}
}

func (c *NullCapturer) Acquire(ctx context.Context) (Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, voiceerr.Media("acquire", err)
	}
	done := make(chan struct{})
	size := frameSize(c.sampleRate)
	track := newFrameTrack(c.sampleRate, size, func() { close(done) })

	go func() {
		ticker := time.NewTicker(FrameDuration)
		defer ticker.Stop()
		silence := make([]int16, size)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				track.push(silence)
			}
		}
	}()
	return track, nil
}
