package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/omochi-ai/voicechat/internal/voiceerr"
)

const (
	MaxScriptRunes = 500
	VoicesPath     = "/api/voices"

	ResultOK            = "ok"
	ResultInvalidScript = "invalid_script"
	ResultRequestError  = "request_error"
	ResultBadPayload    = "bad_payload"
	ResultPlaybackError = "playback_error"
)

var (
	ErrEmptyScript   = errors.New("script is empty")
	ErrScriptTooLong = fmt.Errorf("script exceeds %d characters", MaxScriptRunes)
)

// ValidateScript bounds synthesis input by characters, not bytes, so
// multi-byte scripts get the same allowance.
func ValidateScript(script string) error {
	if strings.TrimSpace(script) == "" {
		return voiceerr.Validation("validate_script", ErrEmptyScript)
	}
	if utf8.RuneCountInString(script) > MaxScriptRunes {
		return voiceerr.Validation("validate_script", ErrScriptTooLong)
	}
	return nil
}

type Request struct {
	Script string `json:"script"`
}

type Response struct {
	Base64Audio string `json:"base64Audio"`
}

// Player receives encoded audio to play.
type Player interface {
	Play(ctx context.Context, encoded []byte) error
}

type Config struct {
	GatewayBaseURL string
	Timeout        time.Duration
	// OnResult observes the outcome of every SynthesizeAndPlay call.
	OnResult func(result string)
	// OnLatency observes the round trip of each successful synthesis.
	OnLatency func(d time.Duration)
}

// Bridge renders finalized assistant text as speech.
type Bridge struct {
	cfg    Config
	client *http.Client
	player Player
	logger zerolog.Logger
}

func NewBridge(cfg Config, player Player, logger zerolog.Logger) *Bridge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	cfg.GatewayBaseURL = strings.TrimRight(strings.TrimSpace(cfg.GatewayBaseURL), "/")
	return &Bridge{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		player: player,
		logger: logger.With().Str("component", "synthesis").Logger(),
	}
}

// SynthesizeAndPlay fetches audio for text and hands it to the player.
// Failures are logged and absorbed; the text turn is already recorded.
func (b *Bridge) SynthesizeAndPlay(ctx context.Context, text string) {
	text = SpeechText(text)
	begin := time.Now()
	encoded, err := b.Synthesize(ctx, text)
	if err != nil {
		b.logger.Warn().Err(err).Int("chars", utf8.RuneCountInString(text)).Msg("speech synthesis failed")
		switch {
		case voiceerr.Is(err, voiceerr.KindValidation):
			b.result(ResultInvalidScript)
		case errors.Is(err, errBadPayload):
			b.result(ResultBadPayload)
		default:
			b.result(ResultRequestError)
		}
		return
	}
	if b.cfg.OnLatency != nil {
		b.cfg.OnLatency(time.Since(begin))
	}
	if ctx.Err() != nil {
		return
	}
	if err := b.player.Play(ctx, encoded); err != nil {
		b.logger.Warn().Err(err).Msg("synthesized audio playback failed")
		b.result(ResultPlaybackError)
		return
	}
	if ctx.Err() != nil {
		return
	}
	b.result(ResultOK)
}

var errBadPayload = errors.New("malformed synthesis payload")

// Synthesize returns the encoded audio for text.
func (b *Bridge) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if err := ValidateScript(text); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(Request{Script: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.GatewayBaseURL+VoicesPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, fmt.Errorf("synthesis status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed Response
	if err := json.NewDecoder(io.LimitReader(res.Body, 32<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	if parsed.Base64Audio == "" {
		return nil, fmt.Errorf("%w: empty base64Audio", errBadPayload)
	}
	audio, err := base64.StdEncoding.DecodeString(parsed.Base64Audio)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return audio, nil
}

func (b *Bridge) result(r string) {
	if b.cfg.OnResult != nil {
		b.cfg.OnResult(r)
	}
}
