// Package voice wraps the ElevenLabs text-to-speech API so questions can be
// read aloud. Purely a boundary adapter; holds no session state.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"podium/internal/config"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("voice synthesis disabled")

type Client struct {
	baseURL string
	apiKey  string
	voiceID string
	http    *http.Client
}

func NewClient(cfg config.VoiceConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		voiceID: cfg.VoiceID,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Enabled() bool { return c.apiKey != "" }

// Speak synthesizes text to MPEG audio. An empty voiceID falls back to the
// configured default voice.
func (c *Client) Speak(ctx context.Context, text, voiceID string) ([]byte, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	if voiceID == "" {
		voiceID = c.voiceID
	}

	payload, err := json.Marshal(map[string]interface{}{
		"text":     text,
		"model_id": "eleven_multilingual_v2",
		"voice_settings": map[string]float64{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tts payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts returned %d", res.StatusCode)
	}
	return io.ReadAll(res.Body)
}
