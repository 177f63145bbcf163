package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrMissingCredential is returned when the token endpoint responds without
// a client_secret value. Fatal to session start.
var ErrMissingCredential = errors.New("token response missing client_secret value")

const defaultAPIBase = "https://api.openai.com"

// TokenSource mints short-lived realtime credentials from the vendor REST
// API. The same source backs both the lifecycle manager and the local /token
// endpoint.
type TokenSource struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewTokenSource(apiKey, model string) *TokenSource {
	return &TokenSource{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultAPIBase,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// SetBaseURL overrides the vendor API base, used in tests.
func (t *TokenSource) SetBaseURL(url string) {
	t.baseURL = url
}

type clientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

type sessionResponse struct {
	ClientSecret *clientSecret `json:"client_secret"`
}

// Mint requests an ephemeral credential. It returns the secret value plus
// the raw response body for passthrough to local clients.
func (t *TokenSource) Mint(ctx context.Context) (string, []byte, error) {
	payload := map[string]any{
		"model":               t.model,
		"voice":               "alloy",
		"input_audio_format":  "pcm16",
		"output_audio_format": "pcm16",
		"input_audio_transcription": map[string]string{
			"model": "whisper-1",
		},
		"turn_detection": map[string]any{
			"type":                "server_vad",
			"threshold":           0.5,
			"prefix_padding_ms":   300,
			"silence_duration_ms": 500,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/realtime/sessions", bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request ephemeral token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, raw)
	}

	var parsed sessionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", nil, fmt.Errorf("parse token response: %w", err)
	}
	if parsed.ClientSecret == nil || parsed.ClientSecret.Value == "" {
		return "", nil, ErrMissingCredential
	}

	return parsed.ClientSecret.Value, raw, nil
}
