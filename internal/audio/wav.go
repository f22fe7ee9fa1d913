package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrUnsupportedWAV = errors.New("unsupported wav encoding")

// DecodeWAV parses a PCM16 RIFF/WAVE payload. Unknown chunks are skipped.
func DecodeWAV(b []byte) (PCM, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return PCM{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrUnsupportedWAV)
	}

	var (
		format  Format
		haveFmt bool
		rest    = b[12:]
	)
	for len(rest) >= 8 {
		id := string(rest[0:4])
		size := int(binary.LittleEndian.Uint32(rest[4:8]))
		rest = rest[8:]
		if size > len(rest) {
			// Streaming encoders sometimes leave the data size unset.
			size = len(rest)
		}
		body := rest[:size]

		switch id {
		case "fmt ":
			if size < 16 {
				return PCM{}, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedWAV)
			}
			audioFormat := binary.LittleEndian.Uint16(body[0:2])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if audioFormat != 1 || bits != 16 {
				return PCM{}, fmt.Errorf("%w: format=%d bits=%d", ErrUnsupportedWAV, audioFormat, bits)
			}
			format.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return PCM{}, fmt.Errorf("%w: data before fmt", ErrUnsupportedWAV)
			}
			if format.Channels <= 0 || format.SampleRate <= 0 {
				return PCM{}, fmt.Errorf("%w: invalid fmt", ErrUnsupportedWAV)
			}
			return PCM{Format: format, Samples: samplesFromLE(body)}, nil
		}

		// Chunks are word aligned.
		if size%2 == 1 && size < len(rest) {
			size++
		}
		rest = rest[size:]
	}
	return PCM{}, fmt.Errorf("%w: no data chunk", ErrUnsupportedWAV)
}
