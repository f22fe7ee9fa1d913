package audio

import (
	"context"
	"testing"

	"github.com/omochi-ai/voicechat/internal/voiceerr"
)

func TestFrameTrackEmitsFixedFramesAndSilenceWhenDisabled(t *testing.T) {
	tr := newFrameTrack(48000, 4, nil)
	tr.push([]int16{1, 2, 3})
	tr.push([]int16{4, 5, 6, 7, 8})

	first := <-tr.Frames()
	if len(first) != 4 || first[0] != 1 || first[3] != 4 {
		t.Fatalf("first frame = %v", first)
	}
	second := <-tr.Frames()
	if second[0] != 5 {
		t.Fatalf("second frame = %v", second)
	}

	tr.SetEnabled(false)
	if tr.Enabled() {
		t.Fatalf("Enabled() = true after SetEnabled(false)")
	}
	tr.push([]int16{9, 9, 9, 9})
	muted := <-tr.Frames()
	for _, s := range muted {
		if s != 0 {
			t.Fatalf("muted frame = %v, want silence", muted)
		}
	}

	tr.SetEnabled(true)
	if !tr.Enabled() {
		t.Fatalf("Enabled() = false after SetEnabled(true)")
	}
}

func TestFrameTrackStopIsIdempotent(t *testing.T) {
	released := 0
	tr := newFrameTrack(48000, 960, func() { released++ })
	tr.Stop()
	tr.Stop()
	if released != 1 {
		t.Fatalf("release calls = %d, want 1", released)
	}
	if _, ok := <-tr.Frames(); ok {
		t.Fatalf("Frames() still open after Stop")
	}
	tr.push(make([]int16, 960))
}

func TestNullCapturerProducesFrames(t *testing.T) {
	tr, err := NewNullCapturer(48000).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer tr.Stop()

	frame := <-tr.Frames()
	if len(frame) != 960 {
		t.Fatalf("len(frame) = %d, want 960", len(frame))
	}
}

func TestNullCapturerHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewNullCapturer(0).Acquire(ctx); !voiceerr.Is(err, voiceerr.KindMedia) {
		t.Fatalf("Acquire() error = %v, want media error", err)
	}
}
