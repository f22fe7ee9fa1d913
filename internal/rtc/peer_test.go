package rtc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
)

type stubTrack struct {
	frames chan []int16
}

func (s *stubTrack) ID() string             { return "stub" }
func (s *stubTrack) SampleRate() int        { return 48000 }
func (s *stubTrack) Frames() <-chan []int16 { return s.frames }
func (s *stubTrack) SetEnabled(bool)        {}
func (s *stubTrack) Enabled() bool          { return true }
func (s *stubTrack) Stop()                  {}

type recordingWriter struct {
	mu      sync.Mutex
	samples []media.Sample
}

func (w *recordingWriter) WriteSample(s media.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, s)
	return nil
}

func TestRunUplinkEncodesFrames(t *testing.T) {
	mic := &stubTrack{frames: make(chan []int16, 3)}
	for i := 0; i < 3; i++ {
		mic.frames <- make([]int16, 960)
	}
	close(mic.frames)

	out := &recordingWriter{}
	if err := runUplink(context.Background(), mic, out, zerolog.Nop()); err != nil {
		t.Fatalf("runUplink() error = %v", err)
	}
	if len(out.samples) != 3 {
		t.Fatalf("samples = %d, want 3", len(out.samples))
	}
	for _, s := range out.samples {
		if s.Duration != 20*time.Millisecond {
			t.Fatalf("Duration = %v, want 20ms", s.Duration)
		}
		if len(s.Data) == 0 {
			t.Fatalf("empty opus packet")
		}
	}
}

func TestICEServersSkipsBlanks(t *testing.T) {
	got := iceServers([]string{" stun:stun.l.google.com:19302 ", "", "  "})
	if len(got) != 1 || got[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("iceServers() = %+v", got)
	}
}

// TestPeerLoopback negotiates against an in-process pion answerer and
// exchanges one message over the data channel.
func TestPeerLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("loopback negotiation is slow")
	}

	factory, err := NewFactory(Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}

	opened := make(chan struct{})
	received := make(chan []byte, 1)
	var openOnce sync.Once
	peer, err := factory.NewPeer(nil, Handlers{
		OnOpen:    func() { openOnce.Do(func() { close(opened) }) },
		OnMessage: func(b []byte) { received <- b },
	})
	if err != nil {
		t.Fatalf("NewPeer() error = %v", err)
	}
	defer peer.Close()

	remote, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("remote peer: %v", err)
	}
	defer remote.Close()
	remote.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DefaultChannelLabel {
			t.Errorf("label = %q, want %q", dc.Label(), DefaultChannelLabel)
		}
		dc.OnOpen(func() { _ = dc.SendText(`{"type":"session.created"}`) })
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	if err := remote.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		t.Fatalf("remote SetRemoteDescription: %v", err)
	}
	answer, err := remote.CreateAnswer(nil)
	if err != nil {
		t.Fatalf("remote CreateAnswer: %v", err)
	}
	gathered := webrtc.GatheringCompletePromise(remote)
	if err := remote.SetLocalDescription(answer); err != nil {
		t.Fatalf("remote SetLocalDescription: %v", err)
	}
	<-gathered
	if err := peer.AcceptAnswer(remote.LocalDescription().SDP); err != nil {
		t.Fatalf("AcceptAnswer() error = %v", err)
	}

	select {
	case <-opened:
	case <-ctx.Done():
		t.Fatalf("data channel did not open")
	}
	select {
	case msg := <-received:
		if string(msg) != `{"type":"session.created"}` {
			t.Fatalf("message = %s", msg)
		}
	case <-ctx.Done():
		t.Fatalf("no message received")
	}
	if !peer.ChannelOpen() {
		t.Fatalf("ChannelOpen() = false")
	}
	if err := peer.Send([]byte(`{"type":"response.create"}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestSendOnClosedChannel(t *testing.T) {
	factory, err := NewFactory(Config{ChannelLabel: "ctl"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	peer, err := factory.NewPeer(nil, Handlers{})
	if err != nil {
		t.Fatalf("NewPeer() error = %v", err)
	}
	defer peer.Close()

	if err := peer.Send([]byte("x")); err != ErrChannelClosed {
		t.Fatalf("Send() error = %v, want ErrChannelClosed", err)
	}
	if got := peer.ConnectionState(); got != "new" {
		t.Fatalf("ConnectionState() = %q, want %q", got, "new")
	}
}
