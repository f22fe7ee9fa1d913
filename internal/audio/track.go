package audio

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Track is an acquired microphone stream of mono PCM16 frames. Disabling
// the track keeps the device running and emits silence.
type Track interface {
	ID() string
	SampleRate() int
	Frames() <-chan []int16
	SetEnabled(enabled bool)
	Enabled() bool
	Stop()
}

// frameTrack slices raw device callbacks into fixed-size frames.
type frameTrack struct {
	id         string
	sampleRate int
	frameSize  int
	enabled    atomic.Bool

	mu      sync.Mutex
	pending []int16
	frames  chan []int16
	stopped bool

	stopOnce sync.Once
	release  func()
}

func newFrameTrack(sampleRate, frameSize int, release func()) *frameTrack {
	t := &frameTrack{
		id:         uuid.NewString(),
		sampleRate: sampleRate,
		frameSize:  frameSize,
		frames:     make(chan []int16, 50),
		release:    release,
	}
	t.enabled.Store(true)
	return t
}

func (t *frameTrack) ID() string              { return t.id }
func (t *frameTrack) SampleRate() int         { return t.sampleRate }
func (t *frameTrack) Frames() <-chan []int16  { return t.frames }
func (t *frameTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }
func (t *frameTrack) Enabled() bool           { return t.enabled.Load() }

// push appends raw samples and emits every complete frame. Frames are
// dropped when the consumer lags.
func (t *frameTrack) push(samples []int16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.pending = append(t.pending, samples...)
	for len(t.pending) >= t.frameSize {
		frame := make([]int16, t.frameSize)
		if t.enabled.Load() {
			copy(frame, t.pending[:t.frameSize])
		}
		t.pending = t.pending[t.frameSize:]
		select {
		case t.frames <- frame:
		default:
		}
	}
}

func (t *frameTrack) Stop() {
	t.stopOnce.Do(func() {
		if t.release != nil {
			t.release()
		}
		t.mu.Lock()
		t.stopped = true
		t.pending = nil
		close(t.frames)
		t.mu.Unlock()
	})
}
