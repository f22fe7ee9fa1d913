package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains runtime settings for the voice client daemon and the
// credential/synthesis gateway.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  string
	LogFormat string

	SessionIdleTimeout    time.Duration
	SessionHealthInterval time.Duration

	GatewayBaseURL   string
	SignalingTimeout time.Duration
	RealtimeURL      string
	RealtimeModel    string
	RealtimeVoice    string
	ICEServers       []string

	AudioBackend            string
	AudioCaptureSampleRate  int
	AudioPlaybackSampleRate int
	SynthesisTimeout        time.Duration

	DatabaseURL      string
	ArchiveRedactPII bool

	GatewayBindAddr       string
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	AssistantInstructions string
	NijivoiceAPIKey       string
	NijivoiceBaseURL      string
	NijivoiceVoiceActorID string
	NijivoiceSpeed        string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", "127.0.0.1:8090"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voicechat"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "json"),
		GatewayBaseURL:   envOrDefault("GATEWAY_BASE_URL", "http://127.0.0.1:8000"),
		RealtimeURL:      envOrDefault("REALTIME_URL", "https://api.openai.com/v1/realtime"),
		RealtimeModel:    envOrDefault("REALTIME_MODEL", "gpt-4o-realtime-preview-2024-12-17"),
		RealtimeVoice:    envOrDefault("REALTIME_VOICE", "alloy"),
		ICEServers:       splitList(envOrDefault("ICE_SERVERS", "stun:stun.l.google.com:19302")),
		// "device" uses the system microphone and speaker; "null" runs headless.
		AudioBackend:            strings.ToLower(envOrDefault("AUDIO_BACKEND", "device")),
		AudioCaptureSampleRate:  48000,
		AudioPlaybackSampleRate: 24000,
		DatabaseURL:             stringsTrimSpace("DATABASE_URL"),
		ArchiveRedactPII:        true,
		ShutdownTimeout:         15 * time.Second,
		SessionIdleTimeout:      5 * time.Minute,
		SessionHealthInterval:   30 * time.Second,
		SignalingTimeout:        15 * time.Second,
		SynthesisTimeout:        20 * time.Second,

		GatewayBindAddr:       envOrDefault("GATEWAY_BIND_ADDR", ":8000"),
		OpenAIAPIKey:          stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:         envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AssistantInstructions: os.Getenv("ASSISTANT_INSTRUCTIONS"),
		NijivoiceAPIKey:       stringsTrimSpace("NIJIVOICE_API_KEY"),
		NijivoiceBaseURL:      envOrDefault("NIJIVOICE_BASE_URL", "https://api.nijivoice.com/api/platform/v1"),
		NijivoiceVoiceActorID: envOrDefault("NIJIVOICE_VOICE_ACTOR_ID", "16e979a8-cd0f-49d4-a4c4-7a25aa42e184"),
		// Recommended speed for the default voice actor.
		NijivoiceSpeed: envOrDefault("NIJIVOICE_SPEED", "0.8"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionIdleTimeout, err = durationFromEnv("SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionHealthInterval, err = durationFromEnv("SESSION_HEALTH_INTERVAL", cfg.SessionHealthInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.SignalingTimeout, err = durationFromEnv("SIGNALING_TIMEOUT", cfg.SignalingTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthesisTimeout, err = durationFromEnv("SYNTHESIS_TIMEOUT", cfg.SynthesisTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioCaptureSampleRate, err = intFromEnv("AUDIO_CAPTURE_SAMPLE_RATE", cfg.AudioCaptureSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioPlaybackSampleRate, err = intFromEnv("AUDIO_PLAYBACK_SAMPLE_RATE", cfg.AudioPlaybackSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.ArchiveRedactPII, err = boolFromEnv("ARCHIVE_REDACT_PII", cfg.ArchiveRedactPII)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionIdleTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("SESSION_IDLE_TIMEOUT must be at least 5s")
	}
	if cfg.SessionHealthInterval < time.Second {
		return Config{}, fmt.Errorf("SESSION_HEALTH_INTERVAL must be at least 1s")
	}
	if cfg.AudioBackend != "device" && cfg.AudioBackend != "null" {
		return Config{}, fmt.Errorf("AUDIO_BACKEND must be device or null")
	}
	// Opus only encodes at these rates.
	switch cfg.AudioCaptureSampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return Config{}, fmt.Errorf("AUDIO_CAPTURE_SAMPLE_RATE must be one of 8000, 12000, 16000, 24000, 48000")
	}
	if cfg.AudioPlaybackSampleRate <= 0 {
		return Config{}, fmt.Errorf("AUDIO_PLAYBACK_SAMPLE_RATE must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
