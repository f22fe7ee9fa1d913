package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
)

// encodeWAV wraps PCM samples in a RIFF/WAVE container.
func encodeWAV(p PCM) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeWAVTo(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeWAVTo writes p to out as a PCM16LE WAV stream.
func writeWAVTo(out io.Writer, p PCM) error {
	const (
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	sampleRate := p.SampleRate
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	channels := p.Channels
	if channels <= 0 {
		channels = 1
	}

	data := p.Bytes()
	dataSize := uint32(len(data))
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)

	w := bufio.NewWriter(out)
	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'}, uint32(36) + dataSize, [4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '}, uint32(16), uint16(audioFormat), uint16(channels),
		uint32(sampleRate), byteRate, blockAlign, uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'}, dataSize,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Flush()
}
