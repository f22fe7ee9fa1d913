package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/omochi-ai/voicechat/internal/voiceerr"
)

const (
	OpFetchCredential = "fetch_credential"
	OpExchangeOffer   = "exchange_offer"

	CredentialPath = "/realtime-apis/voice-chat/sessions"

	maxErrorBody  = 4 << 10
	maxAnswerBody = 1 << 20
)

var (
	errEmptyToken  = errors.New("empty ephemeral token")
	errEmptyAnswer = errors.New("empty sdp answer")
)

type Config struct {
	GatewayBaseURL string
	RealtimeURL    string
	Model          string
	Voice          string
	Timeout        time.Duration
}

// Client obtains ephemeral credentials and performs the SDP offer/answer
// exchange. It never retries; callers treat any error as fatal to the
// start attempt.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if strings.TrimSpace(cfg.RealtimeURL) == "" {
		cfg.RealtimeURL = "https://api.openai.com/v1/realtime"
	}
	return NewClientWithHTTP(cfg, &http.Client{Timeout: cfg.Timeout})
}

func NewClientWithHTTP(cfg Config, hc *http.Client) *Client {
	cfg.GatewayBaseURL = strings.TrimRight(strings.TrimSpace(cfg.GatewayBaseURL), "/")
	cfg.RealtimeURL = strings.TrimSpace(cfg.RealtimeURL)
	return &Client{cfg: cfg, client: hc}
}

type credentialResponse struct {
	EphemeralToken string `json:"ephemeralToken"`
}

func (c *Client) FetchCredential(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GatewayBaseURL+CredentialPath, http.NoBody)
	if err != nil {
		return "", voiceerr.Signaling(OpFetchCredential, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return "", voiceerr.Signaling(OpFetchCredential, fmt.Errorf("send request: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return "", voiceerr.SignalingStatus(OpFetchCredential, res.StatusCode, string(body))
	}

	var parsed credentialResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, maxErrorBody)).Decode(&parsed); err != nil {
		return "", voiceerr.Signaling(OpFetchCredential, fmt.Errorf("decode response: %w", err))
	}
	token := strings.TrimSpace(parsed.EphemeralToken)
	if token == "" {
		return "", voiceerr.Signaling(OpFetchCredential, errEmptyToken)
	}
	return token, nil
}

// ExchangeOffer posts the local SDP offer and returns the remote answer.
func (c *Client) ExchangeOffer(ctx context.Context, offerSDP, token string) (string, error) {
	endpoint, err := c.offerURL()
	if err != nil {
		return "", voiceerr.Signaling(OpExchangeOffer, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offerSDP))
	if err != nil {
		return "", voiceerr.Signaling(OpExchangeOffer, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/sdp")

	res, err := c.client.Do(req)
	if err != nil {
		return "", voiceerr.Signaling(OpExchangeOffer, fmt.Errorf("send request: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return "", voiceerr.SignalingStatus(OpExchangeOffer, res.StatusCode, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxAnswerBody))
	if err != nil {
		return "", voiceerr.Signaling(OpExchangeOffer, fmt.Errorf("read response: %w", err))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "", voiceerr.Signaling(OpExchangeOffer, errEmptyAnswer)
	}
	return string(body), nil
}

func (c *Client) offerURL() (string, error) {
	u, err := url.Parse(c.cfg.RealtimeURL)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	q := u.Query()
	if c.cfg.Model != "" {
		q.Set("model", c.cfg.Model)
	}
	if c.cfg.Voice != "" {
		q.Set("voice", c.cfg.Voice)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
