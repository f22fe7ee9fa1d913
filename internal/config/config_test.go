package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionIdleTimeout != 5*time.Minute {
		t.Fatalf("SessionIdleTimeout = %v, want 5m", cfg.SessionIdleTimeout)
	}
	if cfg.SessionHealthInterval != 30*time.Second {
		t.Fatalf("SessionHealthInterval = %v, want 30s", cfg.SessionHealthInterval)
	}
	if cfg.RealtimeModel != "gpt-4o-realtime-preview-2024-12-17" || cfg.RealtimeVoice != "alloy" {
		t.Fatalf("realtime defaults = %q/%q", cfg.RealtimeModel, cfg.RealtimeVoice)
	}
	if len(cfg.ICEServers) != 1 {
		t.Fatalf("ICEServers = %v, want one default STUN server", cfg.ICEServers)
	}
	if !cfg.ArchiveRedactPII {
		t.Fatalf("ArchiveRedactPII = false, want true by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SESSION_IDLE_TIMEOUT", "90s")
	t.Setenv("ICE_SERVERS", "stun:a.example:3478, ,turn:b.example:3478")
	t.Setenv("AUDIO_BACKEND", "NULL")
	t.Setenv("ARCHIVE_REDACT_PII", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SessionIdleTimeout != 90*time.Second {
		t.Fatalf("SessionIdleTimeout = %v, want 90s", cfg.SessionIdleTimeout)
	}
	if len(cfg.ICEServers) != 2 || cfg.ICEServers[1] != "turn:b.example:3478" {
		t.Fatalf("ICEServers = %v", cfg.ICEServers)
	}
	if cfg.AudioBackend != "null" || cfg.ArchiveRedactPII {
		t.Fatalf("AudioBackend = %q ArchiveRedactPII = %v", cfg.AudioBackend, cfg.ArchiveRedactPII)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"SESSION_IDLE_TIMEOUT":      "1s",
		"SESSION_HEALTH_INTERVAL":   "10ms",
		"AUDIO_BACKEND":             "pulse",
		"AUDIO_CAPTURE_SAMPLE_RATE": "44100",
		"APP_ALLOW_ANY_ORIGIN":      "maybe",
		"SIGNALING_TIMEOUT":         "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q error = nil", key, value)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"SESSION_IDLE_TIMEOUT",
		"SESSION_HEALTH_INTERVAL",
		"SIGNALING_TIMEOUT",
		"GATEWAY_BASE_URL",
		"REALTIME_URL",
		"REALTIME_MODEL",
		"REALTIME_VOICE",
		"ICE_SERVERS",
		"AUDIO_BACKEND",
		"AUDIO_CAPTURE_SAMPLE_RATE",
		"AUDIO_PLAYBACK_SAMPLE_RATE",
		"SYNTHESIS_TIMEOUT",
		"DATABASE_URL",
		"ARCHIVE_REDACT_PII",
		"GATEWAY_BIND_ADDR",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"ASSISTANT_INSTRUCTIONS",
		"NIJIVOICE_API_KEY",
		"NIJIVOICE_BASE_URL",
		"NIJIVOICE_VOICE_ACTOR_ID",
		"NIJIVOICE_SPEED",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
