package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/audio"
)

const maxOpusPacket = 1275

type sampleWriter interface {
	WriteSample(s media.Sample) error
}

// runUplink encodes microphone frames to Opus and writes them to the send
// track until the track stops or ctx is canceled.
func runUplink(ctx context.Context, mic audio.Track, out sampleWriter, logger zerolog.Logger) error {
	enc, err := opus.NewEncoder(mic.SampleRate(), 1, opus.AppVoIP)
	if err != nil {
		return fmt.Errorf("create opus encoder: %w", err)
	}

	buf := make([]byte, maxOpusPacket)
	frames := mic.Frames()
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			n, err := enc.Encode(frame, buf)
			if err != nil {
				logger.Debug().Err(err).Msg("opus encode failed")
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			if err := out.WriteSample(media.Sample{Data: data, Duration: frameDuration(mic, len(frame))}); err != nil {
				logger.Debug().Err(err).Msg("write sample failed")
			}
		}
	}
}

func frameDuration(mic audio.Track, samples int) time.Duration {
	rate := mic.SampleRate()
	if rate <= 0 {
		return audio.FrameDuration
	}
	return time.Duration(samples) * time.Second / time.Duration(rate)
}
