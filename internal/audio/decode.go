package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

var ErrUnknownContainer = errors.New("unrecognized audio container")

// Decoder turns an encoded payload into PCM.
type Decoder interface {
	Decode(ctx context.Context, encoded []byte) (PCM, error)
}

// ContainerDecoder sniffs the payload and decodes WAV or MP3.
type ContainerDecoder struct{}

func (ContainerDecoder) Decode(ctx context.Context, encoded []byte) (PCM, error) {
	if err := ctx.Err(); err != nil {
		return PCM{}, err
	}
	switch {
	case len(encoded) == 0:
		return PCM{}, errors.New("empty audio payload")
	case isWAV(encoded):
		return DecodeWAV(encoded)
	case isMP3(encoded):
		return DecodeMP3(encoded)
	default:
		return PCM{}, ErrUnknownContainer
	}
}

// DecodeMP3 decodes an MP3 stream. go-mp3 always yields 16-bit stereo.
func DecodeMP3(encoded []byte) (PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(encoded))
	if err != nil {
		return PCM{}, fmt.Errorf("open mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return PCM{}, fmt.Errorf("read mp3: %w", err)
	}
	if len(raw) == 0 {
		return PCM{}, errors.New("mp3 stream has no samples")
	}
	return PCM{
		Format:  Format{SampleRate: dec.SampleRate(), Channels: 2},
		Samples: samplesFromLE(raw),
	}, nil
}

func isWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

func isMP3(b []byte) bool {
	if len(b) >= 3 && string(b[0:3]) == "ID3" {
		return true
	}
	// MPEG audio frame sync: 11 set bits.
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0
}
