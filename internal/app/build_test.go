package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/config"
	"github.com/omochi-ai/voicechat/internal/session"
)

func TestBuildHeadless(t *testing.T) {
	cfg := config.Config{
		MetricsNamespace:        "test_app_build",
		GatewayBaseURL:          "http://127.0.0.1:1",
		RealtimeURL:             "http://127.0.0.1:1/v1/realtime",
		AudioBackend:            "null",
		AudioCaptureSampleRate:  48000,
		AudioPlaybackSampleRate: 24000,
		SessionIdleTimeout:      time.Minute,
		SessionHealthInterval:   time.Second,
		SignalingTimeout:        time.Second,
		ArchiveRedactPII:        true,
	}

	res, err := Build(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	if res.AudioBackend != "null" {
		t.Fatalf("AudioBackend = %q, want null", res.AudioBackend)
	}
	if got := res.Controller.State(); got != session.StateIdle {
		t.Fatalf("State() = %q, want idle", got)
	}

	// Nothing listens on the gateway address, so the start fails and the
	// controller settles in Stopped.
	if err := res.Controller.Start(context.Background()); err == nil {
		t.Fatalf("Start() error = nil, want signaling failure")
	}
	if got := res.Controller.State(); got != session.StateStopped {
		t.Fatalf("State() after failed start = %q, want stopped", got)
	}
}

func TestResolveMediaRejectsUnknownBackend(t *testing.T) {
	if _, err := resolveMedia(config.Config{AudioBackend: "pulse"}, zerolog.Nop()); err == nil {
		t.Fatalf("resolveMedia() error = nil, want invalid backend error")
	}
}
