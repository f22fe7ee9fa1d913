package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var errMissingAPIKey = errors.New("api key is not configured")

// upstreamError is a non-success response from a provider.
type upstreamError struct {
	Upstream string
	Status   int
	Body     string
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("%s upstream status %d: %s", e.Upstream, e.Status, e.Body)
}

type RealtimeConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Instructions string
}

type realtimeSessionRequest struct {
	Model        string   `json:"model"`
	Modalities   []string `json:"modalities"`
	Instructions string   `json:"instructions"`
	ToolChoice   string   `json:"tool_choice"`
}

type realtimeSessionResponse struct {
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

// RealtimeSessions mints short-lived client credentials for the realtime API.
type RealtimeSessions struct {
	cfg    RealtimeConfig
	client *http.Client
}

func NewRealtimeSessions(cfg RealtimeConfig, client *http.Client) *RealtimeSessions {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultInstructions
	}
	return &RealtimeSessions{cfg: cfg, client: client}
}

// Create returns the ephemeral client secret of a new text-modality session.
func (s *RealtimeSessions) Create(ctx context.Context) (string, error) {
	if s.cfg.APIKey == "" {
		return "", errMissingAPIKey
	}
	payload, err := json.Marshal(realtimeSessionRequest{
		Model:        s.cfg.Model,
		Modalities:   []string{"text"},
		Instructions: s.cfg.Instructions,
		ToolChoice:   "auto",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/realtime/sessions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	var out realtimeSessionResponse
	if err := doJSON(s.client, req, "openai", &out); err != nil {
		return "", err
	}
	if out.ClientSecret.Value == "" {
		return "", errors.New("openai response missing client_secret.value")
	}
	return out.ClientSecret.Value, nil
}

type VoiceConfig struct {
	APIKey       string
	BaseURL      string
	VoiceActorID string
	Speed        string
}

type generateVoiceRequest struct {
	Script string `json:"script"`
	Format string `json:"format"`
	Speed  string `json:"speed"`
}

type generateVoiceResponse struct {
	GeneratedVoice struct {
		Base64Audio string `json:"base64Audio"`
	} `json:"generatedVoice"`
}

// VoiceActor synthesizes scripts with a single fixed voice actor.
type VoiceActor struct {
	cfg    VoiceConfig
	client *http.Client
}

func NewVoiceActor(cfg VoiceConfig, client *http.Client) *VoiceActor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Speed == "" {
		cfg.Speed = "0.8"
	}
	return &VoiceActor{cfg: cfg, client: client}
}

// Generate returns base64-encoded MP3 audio for script.
func (v *VoiceActor) Generate(ctx context.Context, script string) (string, error) {
	if v.cfg.APIKey == "" {
		return "", errMissingAPIKey
	}
	payload, err := json.Marshal(generateVoiceRequest{Script: script, Format: "mp3", Speed: v.cfg.Speed})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/voice-actors/%s/generate-encoded-voice", v.cfg.BaseURL, v.cfg.VoiceActorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-api-key", v.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var out generateVoiceResponse
	if err := doJSON(v.client, req, "nijivoice", &out); err != nil {
		return "", err
	}
	if out.GeneratedVoice.Base64Audio == "" {
		return "", errors.New("nijivoice response missing base64Audio")
	}
	return out.GeneratedVoice.Base64Audio, nil
}

func doJSON(client *http.Client, req *http.Request, upstream string, out any) error {
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", upstream, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &upstreamError{Upstream: upstream, Status: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s decode: %w", upstream, err)
	}
	return nil
}
