package audio

import (
	"encoding/binary"
	"time"
)

// Format describes interleaved signed 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// PCM is decoded, interleaved signed 16-bit audio.
type PCM struct {
	Format
	Samples []int16
}

func (p PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

func (p PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.SampleRate)
}

// Bytes returns the samples as little-endian bytes.
func (p PCM) Bytes() []byte {
	out := make([]byte, len(p.Samples)*2)
	for i, s := range p.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Convert mixes channels and linearly resamples p to the target format.
func (p PCM) Convert(to Format) PCM {
	if to.SampleRate <= 0 || to.Channels <= 0 || p.Channels <= 0 || p.SampleRate <= 0 {
		return p
	}
	src := p
	if p.Channels != to.Channels {
		src = p.remix(to.Channels)
	}
	if src.SampleRate == to.SampleRate {
		return src
	}
	return src.resample(to.SampleRate)
}

func (p PCM) remix(channels int) PCM {
	frames := p.Frames()
	out := make([]int16, frames*channels)
	for f := 0; f < frames; f++ {
		var sum int32
		for c := 0; c < p.Channels; c++ {
			sum += int32(p.Samples[f*p.Channels+c])
		}
		v := int16(sum / int32(p.Channels))
		for c := 0; c < channels; c++ {
			out[f*channels+c] = v
		}
	}
	return PCM{Format: Format{SampleRate: p.SampleRate, Channels: channels}, Samples: out}
}

func (p PCM) resample(rate int) PCM {
	frames := p.Frames()
	if frames == 0 {
		return PCM{Format: Format{SampleRate: rate, Channels: p.Channels}}
	}
	outFrames := int(int64(frames) * int64(rate) / int64(p.SampleRate))
	out := make([]int16, outFrames*p.Channels)
	step := float64(p.SampleRate) / float64(rate)
	for f := 0; f < outFrames; f++ {
		pos := float64(f) * step
		i := int(pos)
		frac := pos - float64(i)
		j := i + 1
		if j >= frames {
			j = frames - 1
		}
		for c := 0; c < p.Channels; c++ {
			a := float64(p.Samples[i*p.Channels+c])
			b := float64(p.Samples[j*p.Channels+c])
			out[f*p.Channels+c] = int16(a + (b-a)*frac)
		}
	}
	return PCM{Format: Format{SampleRate: rate, Channels: p.Channels}, Samples: out}
}

func samplesFromLE(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}
